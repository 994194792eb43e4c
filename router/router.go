// Package router implements the event router (C3): delivering inbound CDP
// events to a single browser-scoped listener or to the listener of the
// session they're scoped to, dropping events with no registered listener.
//
// Grounded on the teacher's per-session event fan-out in browser.go
// (Browser.pages[sessionID].eventQueue) and the listener registration table
// in handler.go's TargetHandler.Listen/Release, generalized from per
// method-type keys to the spec's per-scope keys: this router never
// interprets event bodies, only routes by session.
package router

import "sync"

// Event is a parsed inbound CDP event, tagged with the session it is
// scoped to (empty for browser-level events).
type Event struct {
	Method    string
	Params    []byte
	SessionID string
}

// Subscription is a handle returned by registering a listener. Closing it
// unregisters the channel; it is safe to call Close more than once.
type Subscription struct {
	ch     chan Event
	closed bool

	unregister func()
	mu         sync.Mutex
}

// C returns the channel events are delivered on. The channel is unbounded
// in practice (spec.md §3: bounded-or-unbounded acceptable, unbounded is
// fine here because the only consumers are single fan-out workers expected
// to drain promptly) — realized as a buffered channel sized generously
// rather than truly unbounded, since Go has no native unbounded channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unregisters the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.unregister()
}

// subscriptionBufferSize bounds the per-listener queue. A listener that
// falls this far behind is broken regardless; sizing here only avoids an
// unbounded goroutine leak risk from a truly unbounded channel.
const subscriptionBufferSize = 4096

// Router holds at most one browser-wide listener and at most one listener
// per session, per spec.md §4.3.
type Router struct {
	mu      sync.Mutex
	browser *Subscription
	session map[string]*Subscription
}

// New returns an empty router.
func New() *Router {
	return &Router{session: make(map[string]*Subscription)}
}

// Browser registers and returns a new browser-level subscription. A later
// call replaces the earlier subscription, which then stops receiving —
// mirroring "at most one browser-level listener".
func (r *Router) Browser() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, subscriptionBufferSize)}
	sub.unregister = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.browser == sub {
			r.browser = nil
		}
	}
	r.browser = sub
	return sub
}

// Session registers and returns a new subscription for sessionID. A later
// call for the same session replaces the earlier subscription, which then
// stops receiving.
func (r *Router) Session(sessionID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, subscriptionBufferSize)}
	sub.unregister = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.session[sessionID] == sub {
			delete(r.session, sessionID)
		}
	}
	r.session[sessionID] = sub
	return sub
}

// Dispatch delivers ev to the matching listener, dropping it silently if
// none is registered (normal during startup races, per spec.md §4.3 rule
// 3). Delivery preserves arrival order within a single channel because
// Dispatch itself is only ever called from the transport's single read
// loop.
//
// The lookup and the send happen under the same lock that DropSession and
// Shutdown close channels under, so a close can never land between
// Dispatch's lookup and its send: a non-blocking select-send never
// suspends, so holding r.mu across it doesn't violate the no-lock-across-a-
// suspension-point rule in spec.md §5.
func (r *Router) Dispatch(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sub *Subscription
	if ev.SessionID == "" {
		sub = r.browser
	} else {
		sub = r.session[ev.SessionID]
	}
	if sub == nil {
		return
	}

	select {
	case sub.ch <- ev:
	default:
		// A listener that can't keep up with the 4096-deep backlog is
		// broken; drop rather than block the read loop (spec.md §5:
		// no suspension point may stall shutdown).
	}
}

// DropSession evicts and closes the channel for sessionID, called by the
// session manager when a target detaches or is destroyed. The close
// happens under r.mu, the same lock Dispatch holds across its send, so a
// Dispatch in flight for this session can never race the close.
func (r *Router) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.session[sessionID]
	if !ok {
		return
	}
	delete(r.session, sessionID)
	close(sub.ch)
}

// Shutdown closes every registered channel, called once by the transport
// when the read loop exits.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		close(r.browser.ch)
		r.browser = nil
	}
	for id, sub := range r.session {
		close(sub.ch)
		delete(r.session, id)
	}
}
