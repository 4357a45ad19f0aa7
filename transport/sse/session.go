package sse

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// eventQueueSize bounds the events waiting to be written to one stream.
const eventQueueSize = 100

// sseSession represents an active SSE connection and implements the types.ClientSession interface.
type sseSession struct {
	sessionID  string
	eventQueue chan []byte   // Formatted SSE frames waiting for the stream writer
	done       chan struct{} // Closed when the session ends
	closeOnce  sync.Once
	closed     atomic.Bool

	limiter *rate.Limiter // nil when rate limiting is disabled

	initialized atomic.Bool
	versionMu   sync.RWMutex
	version     string

	logger types.Logger
}

// Ensure interface compliance
var _ types.ClientSession = (*sseSession)(nil)

func newSSESession(limiter *rate.Limiter, logger types.Logger) *sseSession {
	return &sseSession{
		sessionID:  uuid.NewString(),
		eventQueue: make(chan []byte, eventQueueSize),
		done:       make(chan struct{}),
		limiter:    limiter,
		logger:     logger,
	}
}

func (s *sseSession) SessionID() string { return s.sessionID }

// SendResponse formats and queues a response to be sent over the SSE stream.
func (s *sseSession) SendResponse(response protocol.JSONRPCResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return s.sendMessage(data)
}

// sendMessage queues data as one `message` event. It blocks while the queue
// is full and fails with ErrSessionClosed once the session has ended.
func (s *sseSession) sendMessage(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	frame := formatEvent("message", data)
	select {
	case s.eventQueue <- frame:
	case <-s.done:
		return ErrSessionClosed
	}
	// The stream writer may have returned while the frame was queued.
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// Close ends the session and makes its stream writer return. Work already
// running for the session is not interrupted; its results are dropped.
// It is idempotent.
func (s *sseSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.logger.Debug("Session %s: closed", s.sessionID)
	})
	return nil
}

func (s *sseSession) Initialize()       { s.initialized.Store(true) }
func (s *sseSession) Initialized() bool { return s.initialized.Load() }

func (s *sseSession) SetNegotiatedVersion(version string) {
	s.versionMu.Lock()
	s.version = version
	s.versionMu.Unlock()
}

func (s *sseSession) GetNegotiatedVersion() string {
	s.versionMu.RLock()
	defer s.versionMu.RUnlock()
	return s.version
}

func formatEvent(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

// sessionRegistry maps session ids to live sessions.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*sseSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*sseSession)}
}

func (r *sessionRegistry) add(s *sseSession) {
	r.mu.Lock()
	r.sessions[s.sessionID] = s
	r.mu.Unlock()
}

func (r *sessionRegistry) get(id string) (*sseSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) snapshot() []*sseSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*sseSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
