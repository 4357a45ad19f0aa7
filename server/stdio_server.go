package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/transport/stdio"
	"github.com/localrivet/fichas-mcp/types"
)

// StdioSessionID is the fixed id of the single session bound to the pipe.
const StdioSessionID = "stdio"

// stdioSession is the ClientSession for the pipe transport. It is kept
// internal to the server package as it's specific to ServeStdio.
type stdioSession struct {
	id        string
	transport *stdio.Transport
	logger    types.Logger

	mu                sync.RWMutex
	initialized       bool
	negotiatedVersion string
}

// Ensure interface compliance
var _ types.ClientSession = (*stdioSession)(nil)

func newStdioSession(transport *stdio.Transport, logger types.Logger) *stdioSession {
	return &stdioSession{id: StdioSessionID, transport: transport, logger: logger}
}

func (s *stdioSession) SessionID() string { return s.id }

func (s *stdioSession) SendResponse(response protocol.JSONRPCResponse) error {
	msg, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("StdioSession: error marshaling response: %v", err)
		return err
	}
	return s.transport.Send(msg)
}

func (s *stdioSession) Close() error { return s.transport.Close() }

func (s *stdioSession) Initialize() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

func (s *stdioSession) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *stdioSession) SetNegotiatedVersion(version string) {
	s.mu.Lock()
	s.negotiatedVersion = version
	s.mu.Unlock()
}

func (s *stdioSession) GetNegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedVersion
}

type received struct {
	data []byte
	err  error
}

// ServeStdio runs srv over the newline-delimited pipe formed by in and out.
// Messages are handled in arrival order, except tools/call requests, which
// run concurrently so a later notifications/cancelled can reach them. It
// returns nil when the input reaches EOF or ctx is cancelled, after every
// running tool call has answered, and an error when reading or writing
// fails otherwise.
func ServeStdio(ctx context.Context, srv *Server, in io.Reader, out io.Writer) error {
	logger := srv.logger
	transport := stdio.NewTransport(in, out, logger)
	session := newStdioSession(transport, logger)

	logger.Info("Server listening on stdio")

	var inflight sync.WaitGroup
	stop := make(chan struct{})
	defer func() {
		inflight.Wait()
		close(stop)
		_ = session.Close()
	}()

	// Receive blocks, so it runs in its own goroutine and the loop below
	// selects between the next line and ctx.
	lines := make(chan received)
	go func() {
		defer close(lines)
		for {
			data, err := transport.Receive()
			select {
			case lines <- received{data: data, err: err}:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("ServeStdio: context cancelled, shutting down")
			return nil
		case msg, ok := <-lines:
			if !ok {
				return nil
			}
			if msg.err != nil {
				if errors.Is(msg.err, io.EOF) || errors.Is(msg.err, stdio.ErrClosed) {
					logger.Info("ServeStdio: input closed, shutting down")
					return nil
				}
				logger.Error("ServeStdio: error receiving message: %v", msg.err)
				return fmt.Errorf("error receiving message: %w", msg.err)
			}

			if isToolCall(msg.data) {
				inflight.Add(1)
				go func(data []byte) {
					defer inflight.Done()
					if err := respondStdio(ctx, srv, session, data); err != nil {
						logger.Error("ServeStdio: error sending response: %v", err)
					}
				}(msg.data)
				continue
			}
			if err := respondStdio(ctx, srv, session, msg.data); err != nil {
				logger.Error("ServeStdio: error sending response: %v", err)
				return fmt.Errorf("failed to send response: %w", err)
			}
		}
	}
}

// respondStdio handles one line and writes whatever it produces.
func respondStdio(ctx context.Context, srv *Server, session *stdioSession, data []byte) error {
	responses := srv.HandleMessage(ctx, session, data)
	if len(responses) == 0 {
		return nil
	}
	if !protocol.IsBatch(data) {
		return session.SendResponse(*responses[0])
	}
	payload, err := protocol.EncodeResponses(true, responses)
	if err != nil {
		srv.logger.Error("ServeStdio: error marshaling response: %v", err)
		return nil
	}
	return session.transport.Send(payload)
}

// isToolCall reports whether data is a single tools/call request.
func isToolCall(data []byte) bool {
	if protocol.IsBatch(data) {
		return false
	}
	var msg protocol.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	return msg.Method == protocol.MethodCallTool && !msg.IsNotification()
}
