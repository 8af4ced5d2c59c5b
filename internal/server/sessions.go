package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/mailbox"
)

const (
	// DefaultSessionID is used for the stdio transport, which carries a
	// single conversation per process.
	DefaultSessionID = "default"

	// defaultSessionTimeout is how long an idle session survives before
	// the cleanup loop evicts it.
	defaultSessionTimeout = 24 * time.Hour

	// cleanupInterval is how often expired sessions are collected.
	cleanupInterval = 10 * time.Minute
)

// sessionEntry tracks a mailbox session and its last use for cleanup.
type sessionEntry struct {
	session    *mailbox.Session
	account    string
	lastAccess time.Time
}

// SessionRegistry maps MCP session IDs to mailbox sessions so each agent
// conversation keeps its own listing and position table. Idle sessions are
// evicted by a background cleanup goroutine.
type SessionRegistry struct {
	sc      *ServerContext
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
}

// NewSessionRegistry creates a registry with the default idle timeout and
// starts its cleanup goroutine. Call Stop when the server shuts down.
func NewSessionRegistry(sc *ServerContext) *SessionRegistry {
	return NewSessionRegistryWithTimeout(sc, defaultSessionTimeout)
}

// NewSessionRegistryWithTimeout creates a registry with a custom idle timeout.
func NewSessionRegistryWithTimeout(sc *ServerContext, timeout time.Duration) *SessionRegistry {
	r := &SessionRegistry{
		sc:            sc,
		logger:        sc.Logger(),
		timeout:       timeout,
		sessions:      make(map[string]*sessionEntry),
		cleanupTicker: time.NewTicker(cleanupInterval),
		cleanupDone:   make(chan struct{}),
	}

	go r.cleanupExpiredSessions()

	return r
}

// SessionFor returns the mailbox session for the given MCP session ID and
// account, creating it on first use. An empty session ID resolves to the
// stdio default session. Switching a session to another account replaces
// its mailbox session, discarding the previous listing.
func (r *SessionRegistry) SessionFor(sessionID, account string) (*mailbox.Session, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	if account == "" {
		account = DefaultAccount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, existed := r.sessions[sessionID]
	if existed && entry.account == account {
		entry.lastAccess = time.Now()
		return entry.session, nil
	}

	client, err := r.sc.ClientForAccount(account)
	if err != nil {
		return nil, err
	}

	r.sessions[sessionID] = &sessionEntry{
		session:    mailbox.NewSession(client, r.logger),
		account:    account,
		lastAccess: time.Now(),
	}

	// An account switch replaces the entry under the same session ID, so
	// the gauge only moves when a new ID appears.
	if !existed {
		if m := r.sc.Metrics(); m != nil {
			m.IncrementActiveSessions(context.Background())
		}
	}

	return r.sessions[sessionID].session, nil
}

// RemoveSession drops a session from the registry.
func (r *SessionRegistry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)

	if m := r.sc.Metrics(); m != nil {
		m.DecrementActiveSessions(context.Background())
	}
}

// Len returns the number of active sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// cleanupExpiredSessions periodically evicts sessions idle past the timeout.
func (r *SessionRegistry) cleanupExpiredSessions() {
	for {
		select {
		case <-r.cleanupTicker.C:
			expired := r.evictExpired(time.Now())
			if expired > 0 {
				r.logger.Info("cleaned up expired sessions", slog.Int("count", expired))
			}
		case <-r.cleanupDone:
			return
		}
	}
}

func (r *SessionRegistry) evictExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for sessionID, entry := range r.sessions {
		if now.Sub(entry.lastAccess) > r.timeout {
			delete(r.sessions, sessionID)
			expired++
			if m := r.sc.Metrics(); m != nil {
				m.DecrementActiveSessions(context.Background())
			}
		}
	}
	return expired
}

// Stop stops the cleanup goroutine.
func (r *SessionRegistry) Stop() {
	r.cleanupTicker.Stop()
	close(r.cleanupDone)
}
