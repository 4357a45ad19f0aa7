package hooks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/localrivet/fichas-mcp/auth"
	"github.com/localrivet/fichas-mcp/protocol"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(msg, args...))
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.record("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...interface{})  { l.record("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.record("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.record("ERROR", msg, args...) }

func tag(label string, order *[]string) BeforeToolCallHook {
	return func(next FinalToolHandler) FinalToolHandler {
		return func(ctx context.Context, arguments any) ([]protocol.Content, bool) {
			*order = append(*order, label)
			return next(ctx, arguments)
		}
	}
}

func TestChainRunsHooksOutermostFirst(t *testing.T) {
	var order []string
	final := func(context.Context, any) ([]protocol.Content, bool) {
		order = append(order, "tool")
		return []protocol.Content{protocol.NewTextContent("ok")}, false
	}

	handler := Chain(final, tag("a", &order), nil, tag("b", &order))
	content, isError := handler(context.Background(), nil)

	assert.False(t, isError)
	assert.Len(t, content, 1)
	assert.Equal(t, []string{"a", "b", "tool"}, order)
}

func TestChainCanShortCircuit(t *testing.T) {
	called := false
	final := func(context.Context, any) ([]protocol.Content, bool) {
		called = true
		return nil, false
	}
	deny := func(FinalToolHandler) FinalToolHandler {
		return func(context.Context, any) ([]protocol.Content, bool) {
			return []protocol.Content{protocol.NewTextContent("denied")}, true
		}
	}

	_, isError := Chain(final, deny)(context.Background(), nil)
	assert.True(t, isError)
	assert.False(t, called)
}

func TestLogToolCall(t *testing.T) {
	logger := &recordingLogger{}
	hook := LogToolCall(logger)
	tool := protocol.Tool{Name: "get_ficha_tecnica"}

	hook(ServerHookContext{ToolDefinition: &tool}, nil, nil, false, 15*time.Millisecond)
	hook(ServerHookContext{ToolDefinition: &tool}, nil, nil, true, time.Second)

	assert.Equal(t, []string{
		"INFO Session : tool get_ficha_tecnica completed in 15ms",
		"WARN Session : tool get_ficha_tecnica failed after 1s",
	}, logger.lines)
}

type subject string

func (s subject) GetClaims() interface{} { return nil }
func (s subject) GetSubject() string     { return string(s) }

func TestLogCaller(t *testing.T) {
	logger := &recordingLogger{}
	calls := 0
	handler := Chain(func(context.Context, any) ([]protocol.Content, bool) {
		calls++
		return nil, false
	}, LogCaller(logger))

	handler(context.Background(), nil)
	handler(auth.ContextWithPrincipal(context.Background(), subject("agent-7")), nil)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"INFO Tool call by agent-7"}, logger.lines)
}
