// Package hooks defines the extension points the server runs around
// tools/call, allowing callers to inject logic without touching tool code.
package hooks

import (
	"context"
	"time"

	"github.com/localrivet/fichas-mcp/auth"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// ServerHookContext describes the tools/call being executed.
type ServerHookContext struct {
	Ctx            context.Context
	Session        types.ClientSession
	MessageID      interface{}
	Method         string
	ToolDefinition *protocol.Tool
}

// FinalToolHandler defines the signature for the actual tool execution logic.
type FinalToolHandler func(ctx context.Context, arguments any) (content []protocol.Content, isError bool)

// BeforeToolCallHook wraps the next handler in the chain. It may inspect or
// rewrite the arguments, short-circuit with its own result, or pass through.
type BeforeToolCallHook func(next FinalToolHandler) FinalToolHandler

// AfterToolCallHook runs once a tool handler has returned. It observes the
// outcome and cannot change it.
type AfterToolCallHook func(hookCtx ServerHookContext, arguments any, content []protocol.Content, isError bool, elapsed time.Duration)

// Chain wraps final with hooks. The first hook is the outermost.
func Chain(final FinalToolHandler, before ...BeforeToolCallHook) FinalToolHandler {
	handler := final
	for i := len(before) - 1; i >= 0; i-- {
		if before[i] != nil {
			handler = before[i](handler)
		}
	}
	return handler
}

// LogCaller returns a BeforeToolCallHook that records the authenticated
// subject behind each tool call. Anonymous calls pass through silently.
func LogCaller(logger types.Logger) BeforeToolCallHook {
	return func(next FinalToolHandler) FinalToolHandler {
		return func(ctx context.Context, arguments any) ([]protocol.Content, bool) {
			if principal, ok := auth.PrincipalFromContext(ctx); ok {
				logger.Info("Tool call by %s", principal.GetSubject())
			}
			return next(ctx, arguments)
		}
	}
}

// LogToolCall returns an AfterToolCallHook that records the duration and
// outcome of every tool call.
func LogToolCall(logger types.Logger) AfterToolCallHook {
	return func(hookCtx ServerHookContext, _ any, _ []protocol.Content, isError bool, elapsed time.Duration) {
		name := ""
		if hookCtx.ToolDefinition != nil {
			name = hookCtx.ToolDefinition.Name
		}
		sessionID := ""
		if hookCtx.Session != nil {
			sessionID = hookCtx.Session.SessionID()
		}
		if isError {
			logger.Warn("Session %s: tool %s failed after %s", sessionID, name, elapsed)
			return
		}
		logger.Info("Session %s: tool %s completed in %s", sessionID, name, elapsed)
	}
}
