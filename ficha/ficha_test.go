package ficha

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/fichas-mcp/backend"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/server"
)

type fakeBackend struct {
	calls    int32
	mu       sync.Mutex
	rawQuery []string
	status   int
	body     string
}

func (f *fakeBackend) start(t *testing.T) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		f.mu.Lock()
		f.rawQuery = append(f.rawQuery, r.URL.RawQuery)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)

	client, err := backend.New(srv.URL+"/exec", backend.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func call(t *testing.T, lookuper backend.Lookuper, arguments any) (string, bool) {
	t.Helper()
	content, isError := Handler(lookuper)(context.Background(), arguments)
	require.Len(t, content, 1)
	text, ok := content[0].(protocol.TextContent)
	require.True(t, ok)
	assert.Equal(t, "text", text.Type)
	return text.Text, isError
}

func TestToolDeclaration(t *testing.T) {
	tool := Tool()
	assert.Equal(t, "get_ficha_tecnica", tool.Name)

	schemaJSON, err := json.Marshal(tool.InputSchema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{"codigo":{"type":"string","minLength":1,"description":"Código del producto, ej. 10.100"}},"required":["codigo"]}`, string(schemaJSON))
}

func TestSuccessReturnsBackendRecordVerbatim(t *testing.T) {
	fb := &fakeBackend{body: `{"found":true,"codigo":"10.100","url":"https://x/10.100"}`}
	client := fb.start(t)

	text, isError := call(t, client, map[string]interface{}{"codigo": "10.100"})
	assert.False(t, isError)
	assert.Equal(t, `{"found":true,"codigo":"10.100","url":"https://x/10.100"}`, text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.calls))
}

func TestEachCodeIssuesExactlyOneEncodedCall(t *testing.T) {
	fb := &fakeBackend{body: `{"found":false}`}
	client := fb.start(t)

	codes := map[string]string{
		"10.100":     "codigo=10.100",
		"A B":        "codigo=A%20B",
		"x&y=z":      "codigo=x%26y%3Dz",
		"ñandú/2024": "codigo=%C3%B1and%C3%BA%2F2024",
	}
	for codigo, wantQuery := range codes {
		before := atomic.LoadInt32(&fb.calls)
		_, isError := call(t, client, map[string]interface{}{"codigo": codigo})
		assert.False(t, isError)
		assert.Equal(t, before+1, atomic.LoadInt32(&fb.calls), codigo)

		fb.mu.Lock()
		assert.Equal(t, wantQuery, fb.rawQuery[len(fb.rawQuery)-1])
		fb.mu.Unlock()
	}
}

func TestValidationFailureMakesNoBackendCall(t *testing.T) {
	fb := &fakeBackend{body: `{}`}
	client := fb.start(t)

	cases := map[string]any{
		"empty string":  map[string]interface{}{"codigo": ""},
		"missing":       map[string]interface{}{},
		"nil arguments": nil,
		"wrong type":    map[string]interface{}{"codigo": 10.1},
		"not an object": []interface{}{"10.100"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			text, isError := call(t, client, args)
			assert.True(t, isError)

			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(text), &env))
			assert.False(t, env.Found)
			assert.NotEmpty(t, env.Error)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&fb.calls))

	text, _ := call(t, client, map[string]interface{}{"codigo": ""})
	assert.Equal(t, `{"found":false,"error":"codigo is required"}`, text)
}

func TestHTTPErrorStatus(t *testing.T) {
	fb := &fakeBackend{status: http.StatusNotFound, body: `{"found":false}`}
	client := fb.start(t)

	text, isError := call(t, client, map[string]interface{}{"codigo": "10.100"})
	assert.True(t, isError)
	assert.Equal(t, `{"found":false,"error":"HTTP 404"}`, text)
}

func TestConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client, err := backend.New("http://" + addr + "/exec")
	require.NoError(t, err)

	text, isError := call(t, client, map[string]interface{}{"codigo": "10.100"})
	assert.True(t, isError)
	assert.Equal(t, `{"found":false,"error":"connection failure"}`, text)
}

func TestInvalidBackendJSON(t *testing.T) {
	fb := &fakeBackend{body: `<html>oops</html>`}
	client := fb.start(t)

	text, isError := call(t, client, map[string]interface{}{"codigo": "10.100"})
	assert.True(t, isError)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.False(t, env.Found)
	assert.Contains(t, env.Error, "invalid JSON")
}

// stubSession is the smallest ClientSession the dispatcher accepts.
type stubSession struct{ version string }

func (s *stubSession) SessionID() string                           { return "test" }
func (s *stubSession) SendResponse(protocol.JSONRPCResponse) error { return nil }
func (s *stubSession) Initialize()                                 {}
func (s *stubSession) Initialized() bool                           { return true }
func (s *stubSession) SetNegotiatedVersion(v string)               { s.version = v }
func (s *stubSession) GetNegotiatedVersion() string                { return s.version }

func TestRegisterThroughDispatcher(t *testing.T) {
	fb := &fakeBackend{status: http.StatusNotFound}
	client := fb.start(t)

	srv := server.NewServer("")
	require.NoError(t, Register(srv, client))

	responses := srv.HandleMessage(context.Background(), &stubSession{},
		json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_ficha_tecnica","arguments":{"codigo":"10.100"}}}`))
	require.Len(t, responses, 1)

	data, err := json.Marshal(responses[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"{\"found\":false,\"error\":\"HTTP 404\"}"}],"isError":true}}`, string(data))
}
