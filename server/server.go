// Package server provides the MCP server implementation: a transport
// independent dispatcher plus helpers that serve it over stdio or HTTP+SSE.
package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/localrivet/fichas-mcp/hooks"
	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// Default identity reported in the initialize result.
const (
	DefaultName    = "valmex-fichas-mcp"
	DefaultVersion = "1.0.0"
)

// ToolHandlerFunc executes a tool. The returned content becomes the result
// envelope; isError marks a failure the client should show to the model.
type ToolHandlerFunc = hooks.FinalToolHandler

// Server represents the core MCP server logic, independent of transport.
type Server struct {
	serverName         string
	serverVersion      string
	serverInstructions string
	logger             types.Logger

	toolRegistry map[string]protocol.Tool
	toolHandlers map[string]ToolHandlerFunc
	registryMu   sync.RWMutex

	serverCapabilities protocol.ServerCapabilities

	beforeToolCall []hooks.BeforeToolCallHook
	afterToolCall  []hooks.AfterToolCallHook

	// In-flight tools/call requests keyed by session and request id.
	activeRequests map[string]*inflightRequest
	requestMu      sync.Mutex
}

// ServerOption defines a function signature for configuring a Server.
type ServerOption func(*Server)

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion overrides the version reported in serverInfo.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.serverVersion = version
		}
	}
}

// WithInstructions sets the server instructions string returned during initialization.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.serverInstructions = instructions
	}
}

// WithBeforeToolCall registers hooks that wrap every tool handler.
func WithBeforeToolCall(h ...hooks.BeforeToolCallHook) ServerOption {
	return func(s *Server) {
		s.beforeToolCall = append(s.beforeToolCall, h...)
	}
}

// WithAfterToolCall registers hooks that observe every completed tool call.
func WithAfterToolCall(h ...hooks.AfterToolCallHook) ServerOption {
	return func(s *Server) {
		s.afterToolCall = append(s.afterToolCall, h...)
	}
}

// NewServer creates a new Server. An empty name falls back to DefaultName.
func NewServer(serverName string, opts ...ServerOption) *Server {
	if serverName == "" {
		serverName = DefaultName
	}
	srv := &Server{
		serverName:    serverName,
		serverVersion: DefaultVersion,
		logger:        logx.NopLogger{},
		serverCapabilities: protocol.ServerCapabilities{
			Tools: &protocol.ToolsCapability{},
		},
		toolRegistry:   make(map[string]protocol.Tool),
		toolHandlers:   make(map[string]ToolHandlerFunc),
		activeRequests: make(map[string]*inflightRequest),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.logger.Debug("MCP server %q (%s) created", srv.serverName, srv.serverVersion)
	return srv
}

// RegisterTool declares a tool and its handler. Registering a name twice
// replaces the earlier declaration.
func (s *Server) RegisterTool(tool protocol.Tool, handler ToolHandlerFunc) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler cannot be nil", tool.Name)
	}
	if tool.InputSchema.Type == "" {
		tool.InputSchema.Type = "object"
	}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if _, exists := s.toolRegistry[tool.Name]; exists {
		s.logger.Warn("Tool %q re-registered, replacing previous declaration", tool.Name)
	}
	s.toolRegistry[tool.Name] = tool
	s.toolHandlers[tool.Name] = handler
	s.logger.Info("Registered tool: %s", tool.Name)
	return nil
}

// Tools returns every declared tool sorted by name.
func (s *Server) Tools() []protocol.Tool {
	s.registryMu.RLock()
	tools := make([]protocol.Tool, 0, len(s.toolRegistry))
	for _, tool := range s.toolRegistry {
		tools = append(tools, tool)
	}
	s.registryMu.RUnlock()

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (s *Server) lookupTool(name string) (protocol.Tool, ToolHandlerFunc, bool) {
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	handler, ok := s.toolHandlers[name]
	return s.toolRegistry[name], handler, ok
}

// errRequestCancelled is the cancellation cause set by notifications/cancelled.
var errRequestCancelled = errors.New("request cancelled by client")

type inflightRequest struct {
	cancel context.CancelCauseFunc
}

// requestKey identifies a request within a session. The id's type is part
// of the key: "1" and 1 are different requests.
func requestKey(sessionID string, id interface{}) string {
	return fmt.Sprintf("%s/%T/%v", sessionID, id, id)
}

// trackRequest registers an in-flight request. It returns nil when a
// request with the same key is already running.
func (s *Server) trackRequest(key string, cancel context.CancelCauseFunc) *inflightRequest {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()
	if _, exists := s.activeRequests[key]; exists {
		return nil
	}
	req := &inflightRequest{cancel: cancel}
	s.activeRequests[key] = req
	return req
}

// untrackRequest removes req, leaving any newer request under key alone.
func (s *Server) untrackRequest(key string, req *inflightRequest) {
	s.requestMu.Lock()
	if s.activeRequests[key] == req {
		delete(s.activeRequests, key)
	}
	s.requestMu.Unlock()
}

// cancelRequest cancels an in-flight request; it reports whether one was found.
func (s *Server) cancelRequest(key string) bool {
	s.requestMu.Lock()
	req, ok := s.activeRequests[key]
	delete(s.activeRequests, key)
	s.requestMu.Unlock()
	if ok {
		req.cancel(errRequestCancelled)
	}
	return ok
}
