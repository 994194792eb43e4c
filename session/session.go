// Package session implements the session manager (C5): turning a target ID
// into an attached session, and evicting it when the target detaches or is
// destroyed. Grounded on the teacher's Target.waitLoaded/target.go attach
// dance and browser.go's session bookkeeping, generalized behind the small
// caller interface dialer needs from transport.Transport.
package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Caller is the subset of transport.Transport the session manager needs.
// Kept narrow so tests can supply a fake without importing the transport
// package.
type Caller interface {
	CallOnBrowser(ctx context.Context, method string, params, res any) error
	DropSession(sessionID string)
}

type attachToTargetParams struct {
	TargetID string `json:"targetId"`
	Flatten  bool   `json:"flatten"`
}

type attachToTargetResult struct {
	SessionID string `json:"sessionId"`
}

type detachFromTargetParams struct {
	SessionID string `json:"sessionId"`
}

// Session is a handle to one attached target.
type Session struct {
	ID       string
	TargetID string
}

// Manager tracks the live sessionID<->targetID mapping and attaches lazily:
// Attach is idempotent and safe to call repeatedly for the same target, per
// spec.md §4.5's "lazy attach on first interaction" rule.
type Manager struct {
	caller Caller

	mu           sync.Mutex
	byTarget     map[string]*Session
	bySessionID  map[string]*Session
}

// New returns an empty session manager bound to caller.
func New(caller Caller) *Manager {
	return &Manager{
		caller:      caller,
		byTarget:    make(map[string]*Session),
		bySessionID: make(map[string]*Session),
	}
}

// Attach returns the Session for targetID, issuing Target.attachToTarget on
// the browser connection the first time targetID is seen and reusing the
// result afterward.
//
// flatten is always false: this core routes every session-scoped call
// through Target.sendMessageToTarget (see wire.EncodeForSession), never the
// top-level flattened sessionId CDP also supports, per spec.md §4.1.
func (m *Manager) Attach(ctx context.Context, targetID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.byTarget[targetID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	var res attachToTargetResult
	err := m.caller.CallOnBrowser(ctx, "Target.attachToTarget", &attachToTargetParams{
		TargetID: targetID,
		Flatten:  false,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	s := &Session{ID: res.SessionID, TargetID: targetID}

	m.mu.Lock()
	m.byTarget[targetID] = s
	m.bySessionID[res.SessionID] = s
	m.mu.Unlock()

	return s, nil
}

// Detach ends a session explicitly via Target.detachFromTarget, then evicts
// it from the manager and the transport's router/registry regardless of
// whether the call succeeds — a failed detach still means this process is
// done with the session.
func (m *Manager) Detach(ctx context.Context, sessionID string) error {
	err := m.caller.CallOnBrowser(ctx, "Target.detachFromTarget", &detachFromTargetParams{
		SessionID: sessionID,
	}, nil)
	m.evict(sessionID)
	if err != nil {
		return fmt.Errorf("detach session %s: %w", sessionID, err)
	}
	return nil
}

// Evict removes sessionID from bookkeeping and fails its outstanding calls,
// called by the browser supervisor on detachedFromTarget/targetDestroyed
// events rather than an explicit Detach call.
func (m *Manager) Evict(sessionID string) { m.evict(sessionID) }

func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	s, ok := m.bySessionID[sessionID]
	if ok {
		delete(m.bySessionID, sessionID)
		delete(m.byTarget, s.TargetID)
	}
	m.mu.Unlock()

	if ok {
		m.caller.DropSession(sessionID)
	}
}

// Sessions returns a snapshot of live sessions sorted by session ID, for
// deterministic iteration (logging, teardown) rather than Go's randomized
// map order.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.bySessionID))
	for _, s := range m.bySessionID {
		out = append(out, s)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) bool { return a.ID < b.ID })
	return out
}
