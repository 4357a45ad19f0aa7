package ficha

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/fichas-mcp/backend"
	"github.com/localrivet/fichas-mcp/server"
)

// readEndpoint returns the data of the endpoint event that opens a stream.
func readEndpoint(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	sawEvent := false
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "event: endpoint":
			sawEvent = true
		case sawEvent && strings.HasPrefix(line, "data: "):
			return strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamCloseLetsLookupFinish(t *testing.T) {
	received := make(chan struct{})
	release := make(chan struct{})
	lookupCtxErr := make(chan error, 1)
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(received)
		<-release
		lookupCtxErr <- r.Context().Err()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"found":true,"codigo":"10.100","url":"https://x/1"}`)
	}))
	defer backendSrv.Close()

	client, err := backend.New(backendSrv.URL)
	require.NoError(t, err)
	srv := server.NewServer("")
	require.NoError(t, Register(srv, client))

	handler, sseSrv := server.NewSSEHandler(srv, server.SSEOptions{})
	ts := httptest.NewServer(handler)
	defer ts.Close()
	defer sseSrv.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	endpoint := readEndpoint(t, bufio.NewReader(streamResp.Body))

	postResp, err := http.Post(ts.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_ficha_tecnica","arguments":{"codigo":"10.100"}}}`))
	require.NoError(t, err)
	_ = postResp.Body.Close()
	require.Equal(t, http.StatusOK, postResp.StatusCode)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the lookup")
	}

	cancel()
	require.Eventually(t, func() bool { return sseSrv.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	close(release)

	select {
	case err := <-lookupCtxErr:
		assert.NoError(t, err, "lookup was aborted by stream close")
	case <-time.After(2 * time.Second):
		t.Fatal("backend handler did not finish")
	}

	late, err := http.Post(ts.URL+endpoint, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	require.NoError(t, err)
	_ = late.Body.Close()
	assert.Equal(t, http.StatusNotFound, late.StatusCode)
}
