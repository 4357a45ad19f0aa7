package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/localrivet/fichas-mcp/hooks"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

func (s *Server) handleListToolsRequest(id interface{}, rawParams json.RawMessage) *protocol.JSONRPCResponse {
	var params protocol.ListToolsRequestParams
	if err := protocol.UnmarshalParams(rawParams, &params); err != nil {
		return protocol.NewErrorResponse(id, protocol.CodeInvalidParams, fmt.Sprintf("Failed to parse tools/list params: %v", err), nil)
	}
	return protocol.NewSuccessResponse(id, protocol.ListToolsResult{Tools: s.Tools()})
}

func (s *Server) handleCallToolRequest(ctx context.Context, session types.ClientSession, id interface{}, rawParams json.RawMessage) *protocol.JSONRPCResponse {
	var params protocol.CallToolParams
	if err := protocol.UnmarshalParams(rawParams, &params); err != nil {
		return protocol.NewErrorResponse(id, protocol.CodeInvalidParams, fmt.Sprintf("Failed to parse tools/call params: %v", err), nil)
	}
	if params.Name == "" {
		mcpErr := protocol.NewInvalidParamsError("Tool name is required")
		return protocol.NewErrorResponse(id, mcpErr.Code, mcpErr.Message, nil)
	}

	tool, handler, ok := s.lookupTool(params.Name)
	if !ok {
		s.logger.Warn("Session %s: unknown tool %q", session.SessionID(), params.Name)
		mcpErr := protocol.NewInvalidParamsError(fmt.Sprintf("Unknown tool: %s", params.Name))
		return protocol.NewErrorResponse(id, mcpErr.Code, mcpErr.Message, nil)
	}

	if !session.Initialized() {
		s.logger.Debug("Session %s: tools/call %s before initialization completed", session.SessionID(), params.Name)
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	key := requestKey(session.SessionID(), id)
	inflight := s.trackRequest(key, cancel)
	if inflight == nil {
		cancel(nil)
		return protocol.NewErrorResponse(id, protocol.CodeInvalidRequest, fmt.Sprintf("Request id %v is already in flight", id), nil)
	}
	defer func() {
		s.untrackRequest(key, inflight)
		cancel(nil)
	}()

	var arguments any
	if params.Arguments != nil {
		arguments = params.Arguments
	}

	start := time.Now()
	content, isError, panicked := s.invokeTool(reqCtx, params.Name, hooks.Chain(handler, s.beforeToolCall...), arguments)
	if errors.Is(context.Cause(reqCtx), errRequestCancelled) {
		s.logger.Debug("Session %s: request %v was cancelled, not responding", session.SessionID(), id)
		return nil
	}
	if panicked {
		return protocol.NewErrorResponse(id, protocol.CodeInternalError, fmt.Sprintf("Tool %s failed unexpectedly", params.Name), nil)
	}
	if len(s.afterToolCall) > 0 {
		hookCtx := hooks.ServerHookContext{
			Ctx:            ctx,
			Session:        session,
			MessageID:      id,
			Method:         protocol.MethodCallTool,
			ToolDefinition: &tool,
		}
		elapsed := time.Since(start)
		for _, after := range s.afterToolCall {
			after(hookCtx, arguments, content, isError, elapsed)
		}
	}
	if content == nil {
		content = []protocol.Content{}
	}
	return protocol.NewSuccessResponse(id, protocol.CallToolResult{Content: content, IsError: isError})
}

// invokeTool runs handler and converts a panic into panicked=true.
func (s *Server) invokeTool(ctx context.Context, name string, handler ToolHandlerFunc, arguments any) (content []protocol.Content, isError bool, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tool %s panicked: %v", name, r)
			content, isError, panicked = nil, true, true
		}
	}()
	content, isError = handler(ctx, arguments)
	return content, isError, false
}
