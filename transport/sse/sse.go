// Package sse provides MCP server implementation over Server-Sent Events (SSE)
// using a hybrid approach (SSE for server->client, HTTP POST for client->server).
//
// A client opens a stream with GET on the base path and receives an
// `endpoint` event naming the URL to POST messages to. Each POST is
// acknowledged immediately; the JSON-RPC responses arrive later as
// `message` events on the stream of the session that sent the request.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// MaxMessageBytes caps the size of a POSTed message body.
const MaxMessageBytes = 4 << 20

// DefaultBasePath is used when SSEServerOptions.BasePath is empty.
const DefaultBasePath = "/mcp"

// SessionHeader is accepted as an alternative to the sessionId query parameter.
const SessionHeader = "X-Session-Id"

var (
	// ErrMissingSessionID is reported when a POST names no session.
	ErrMissingSessionID = errors.New("missing sessionId")
	// ErrUnknownSession is reported when a POST names a session that is not open.
	ErrUnknownSession = errors.New("unknown or expired session")
	// ErrSessionClosed is returned when sending to a session whose stream has ended.
	ErrSessionClosed = errors.New("session closed")
)

// MCPServerLogic defines the interface SSEServer needs from the core server logic.
type MCPServerLogic interface {
	HandleMessage(ctx context.Context, session types.ClientSession, rawMessage json.RawMessage) []*protocol.JSONRPCResponse
}

// SSEContextFunc is a function type used by the SSEServer to allow
// customization of the context passed to the core MCPServer's HandleMessage method,
// based on the incoming HTTP request for client->server messages.
type SSEContextFunc func(ctx context.Context, r *http.Request) context.Context

// SSEServerOptions configure the SSEServer.
type SSEServerOptions struct {
	Logger      types.Logger
	ContextFunc SSEContextFunc
	BasePath    string

	// KeepAlive is the interval between `: ping` comment frames; 0 disables them.
	KeepAlive time.Duration

	// RateLimit is the number of POSTs per second allowed per session; 0
	// disables limiting. RateBurst is the bucket size (minimum 1).
	RateLimit float64
	RateBurst int
}

// SSEServer implements the HTTP handlers for the hybrid SSE/HTTP POST transport.
type SSEServer struct {
	mcpServer   MCPServerLogic
	sessions    *sessionRegistry
	logger      types.Logger
	contextFunc SSEContextFunc
	basePath    string
	keepAlive   time.Duration
	rateLimit   rate.Limit
	rateBurst   int
}

// Ensure interface compliance
var _ http.Handler = (*SSEServer)(nil)

// NewSSEServer creates a new HTTP server providing MCP over SSE+HTTP.
func NewSSEServer(mcpServer MCPServerLogic, opts SSEServerOptions) *SSEServer {
	logger := opts.Logger
	if logger == nil {
		logger = logx.NopLogger{}
	}

	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}

	s := &SSEServer{
		mcpServer:   mcpServer,
		sessions:    newSessionRegistry(),
		logger:      logger,
		contextFunc: opts.ContextFunc,
		basePath:    NormalizeBasePath(opts.BasePath),
		keepAlive:   opts.KeepAlive,
		rateLimit:   rate.Limit(opts.RateLimit),
		rateBurst:   burst,
	}
	logger.Debug("SSE server created on %s", s.basePath)
	return s
}

// NormalizeBasePath returns p with a leading slash and no trailing slash,
// or DefaultBasePath when p is empty.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

// BasePath returns the path streams and messages are served on.
func (s *SSEServer) BasePath() string { return s.basePath }

// SessionCount returns the number of open streams.
func (s *SSEServer) SessionCount() int { return s.sessions.count() }

// CloseAll ends every open session. Their stream handlers return and
// remove them from the registry.
func (s *SSEServer) CloseAll() {
	for _, session := range s.sessions.snapshot() {
		_ = session.Close()
	}
}

// ServeHTTP routes GET to HandleSSE and POST to HandleMessage.
func (s *SSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.basePath {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.HandleSSE(w, r)
	case http.MethodPost:
		s.HandleMessage(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSSE handles the persistent SSE connection for server-to-client messages.
// The session lives exactly as long as this handler.
func (s *SSEServer) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var limiter *rate.Limiter
	if s.rateLimit > 0 {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}
	session := newSSESession(limiter, s.logger)
	s.sessions.add(session)
	defer func() {
		s.sessions.remove(session.SessionID())
		_ = session.Close()
		s.logger.Info("SSE connection closed for session %s", session.SessionID())
	}()

	s.logger.Info("SSE connection established for session %s from %s", session.SessionID(), r.RemoteAddr)

	if _, err := w.Write(formatEvent("endpoint", []byte(s.messageEndpointURL(session.SessionID())))); err != nil {
		s.logger.Warn("Session %s: failed to write endpoint event: %v", session.SessionID(), err)
		return
	}
	flusher.Flush()

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-session.eventQueue:
			if _, err := w.Write(frame); err != nil {
				s.logger.Warn("Session %s: write failed, closing stream: %v", session.SessionID(), err)
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				s.logger.Warn("Session %s: keep-alive failed, closing stream: %v", session.SessionID(), err)
				return
			}
			flusher.Flush()
		case <-session.done:
			return
		case <-r.Context().Done():
			s.logger.Debug("Session %s: request context done: %v", session.SessionID(), r.Context().Err())
			return
		}
	}
}

// HandleMessage processes incoming JSON-RPC messages via HTTP POST. The
// request is acknowledged with 200 before the message is handled; results
// are delivered on the session's stream.
func (s *SSEServer) HandleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.Header.Get(SessionHeader)
	}
	if sessionID == "" {
		s.writeJSONRPCError(w, http.StatusBadRequest, nil, protocol.CodeInvalidRequest, ErrMissingSessionID.Error())
		return
	}

	session, ok := s.sessions.get(sessionID)
	if !ok || session.closed.Load() {
		s.writeJSONRPCError(w, http.StatusNotFound, nil, protocol.CodeInvalidRequest,
			fmt.Sprintf("%s: %s", ErrUnknownSession.Error(), sessionID))
		return
	}

	if session.limiter != nil && !session.limiter.Allow() {
		s.logger.Warn("Session %s: rate limit exceeded", sessionID)
		w.Header().Set("Retry-After", "1")
		s.writeJSONRPCError(w, http.StatusTooManyRequests, nil, protocol.CodeInvalidRequest, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageBytes))
	if err != nil {
		s.writeJSONRPCError(w, http.StatusBadRequest, nil, protocol.CodeParseError, fmt.Sprintf("Parse error: %v", err))
		return
	}
	if !json.Valid(body) {
		s.writeJSONRPCError(w, http.StatusBadRequest, nil, protocol.CodeParseError, "Parse error: body is not valid JSON")
		return
	}

	// Handling continues after this POST returns and after the stream closes.
	ctx := context.WithoutCancel(r.Context())
	if s.contextFunc != nil {
		ctx = s.contextFunc(ctx, r)
	}

	go s.process(ctx, session, body)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Accepted")
}

// process runs one message through the server logic and queues whatever it
// returns on the session's stream.
func (s *SSEServer) process(ctx context.Context, session *sseSession, body []byte) {
	responses := s.mcpServer.HandleMessage(ctx, session, body)
	if len(responses) == 0 {
		return
	}

	var err error
	if protocol.IsBatch(body) {
		var payload []byte
		if payload, err = protocol.EncodeResponses(true, responses); err != nil {
			s.logger.Error("Session %s: failed to encode responses: %v", session.SessionID(), err)
			return
		}
		err = session.sendMessage(payload)
	} else {
		err = session.SendResponse(*responses[0])
	}
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			s.logger.Debug("Session %s: dropping result, stream already closed", session.SessionID())
			return
		}
		s.logger.Error("Session %s: failed to queue result: %v", session.SessionID(), err)
	}
}

// writeJSONRPCError writes a JSON-RPC error response with the given HTTP status.
func (s *SSEServer) writeJSONRPCError(w http.ResponseWriter, status int, id interface{}, code protocol.ErrorCode, message string) {
	response := protocol.NewErrorResponse(id, code, message, nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to write JSON-RPC error response: %v", err)
	}
}

// messageEndpointURL is the relative URL announced in the endpoint event.
func (s *SSEServer) messageEndpointURL(sessionID string) string {
	return fmt.Sprintf("%s?sessionId=%s", s.basePath, sessionID)
}
