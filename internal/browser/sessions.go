// sessions.go — Lazy per-tab Session registry.
// Strategy evaluators and the executor address tabs by handle; this registry
// hands them the retrying session bound to that tab.
package browser

import (
	"log/slog"
	"sync"
)

// Sessions owns one Session per attached tab.
type Sessions struct {
	client Client
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[TabID]*Session
}

// NewSessions creates a session registry over the provider.
func NewSessions(client Client, logger *slog.Logger) *Sessions {
	return &Sessions{
		client:   client,
		logger:   logger,
		sessions: make(map[TabID]*Session),
	}
}

// Session returns the tab's command session, creating it on first use.
func (r *Sessions) Session(tab TabID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tab]; ok {
		return s
	}
	s := NewSession(r.client, tab, r.logger)
	r.sessions[tab] = s
	return s
}

// Release drops the tab's session, typically on detach or run cancel.
func (r *Sessions) Release(tab TabID) {
	r.mu.Lock()
	delete(r.sessions, tab)
	r.mu.Unlock()
}

// Client returns the underlying provider.
func (r *Sessions) Client() Client { return r.client }
