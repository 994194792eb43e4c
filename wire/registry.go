package wire

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Outcome is what a pending call's slot is resolved with: either the raw
// result bytes, or an error (protocol, decode, timeout, or transport-level).
type Outcome struct {
	Result RawMessage
	Err    error
}

// pendingKey is the (sessionID, id) compound key from spec.md §4.2. An empty
// sessionID means the call was issued on the browser itself.
type pendingKey struct {
	sessionID string
	id        int64
}

// Registry allocates monotonically increasing call IDs and holds the
// pending-call table, delivering each response to exactly one waiter.
// Grounded on Browser.run's respByID map and Target.Execute's per-call
// channel in the teacher's browser.go/target.go, generalized into a single
// table keyed by (sessionID, id) instead of two separate maps.
type Registry struct {
	next int64 // atomic

	mu      sync.Mutex
	pending map[pendingKey]chan Outcome
}

// NewRegistry returns an empty call registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[pendingKey]chan Outcome)}
}

// NextID allocates the next globally unique call id. The ID space is shared
// between browser-scoped and session-scoped calls, per spec.md §4.4, which
// keeps correlation simple: there is only ever one counter to reason about.
func (r *Registry) NextID() int64 {
	return atomic.AddInt64(&r.next, 1)
}

// Begin registers a slot for id before the caller's request bytes reach the
// socket writer, satisfying the PendingCall invariant in spec.md §3. The
// returned channel receives at most one Outcome (none if the slot is
// cancelled).
func (r *Registry) Begin(sessionID string, id int64) <-chan Outcome {
	ch := make(chan Outcome, 1)
	r.mu.Lock()
	r.pending[pendingKey{sessionID, id}] = ch
	r.mu.Unlock()
	return ch
}

// Cancel removes a slot without delivering to it, used when a call fails to
// reach the socket (e.g. a write error), so the slot does not linger in the
// table and a late response for id is reported by Complete as having no
// waiter.
func (r *Registry) Cancel(sessionID string, id int64) {
	r.mu.Lock()
	delete(r.pending, pendingKey{sessionID, id})
	r.mu.Unlock()
}

// Complete delivers outcome to the slot for (sessionID, id), if any, and
// removes it. It reports whether a waiter was found; a false return means
// the response arrived after the caller gave up (cancellation) or the id
// was bogus, and should be logged, not treated as fatal.
func (r *Registry) Complete(sessionID string, id int64, outcome Outcome) bool {
	key := pendingKey{sessionID, id}
	r.mu.Lock()
	ch, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	return true
}

// FailAll drains every pending slot with err, used on transport shutdown.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[pendingKey]chan Outcome)
	r.mu.Unlock()

	for _, ch := range pending {
		ch <- Outcome{Err: err}
	}
}

// FailSession drains every slot scoped to sessionID with err, used when a
// session is detached or its target is destroyed while calls are in flight.
func (r *Registry) FailSession(sessionID string, err error) {
	r.mu.Lock()
	var toFail []chan Outcome
	for key, ch := range r.pending {
		if key.sessionID == sessionID {
			toFail = append(toFail, ch)
			delete(r.pending, key)
		}
	}
	r.mu.Unlock()

	for _, ch := range toFail {
		ch <- Outcome{Err: err}
	}
}

// DecodeInto unmarshals outcome's result into dst, or returns its error
// as-is. Centralizing this keeps the "surface a DecodeError to the waiting
// caller only" rule (spec.md §7) in one place.
func DecodeInto(outcome Outcome, dst any) error {
	if outcome.Err != nil {
		return outcome.Err
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(outcome.Result, dst); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
