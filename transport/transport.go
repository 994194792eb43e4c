// Package transport implements the transport (C4): it owns the WebSocket,
// serializes writes, spawns the read loop, and exposes the synchronous
// call_method_on_browser / call_method_on_target surface plus event
// subscription handles described in spec.md §4.4 and §6.
//
// Grounded on the teacher's Browser.run read loop (browser.go) and
// Target.Execute (target.go), generalized so the session wrap/unwrap and
// correlation logic lives in wire and router instead of being inlined.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nilsrask/cdpmux/router"
	"github.com/nilsrask/cdpmux/wire"
)

// DefaultCallTimeout bounds a single call's wait on its completion slot.
// Chosen to exceed typical navigation timings but bound pathological
// hangs, per spec.md §5.
const DefaultCallTimeout = 15 * time.Second

// browserEventRecvWindow is how long the browser-level fan-out consumer may
// wait on a single receive before logging a timeout and walking away, per
// spec.md §5. Transport itself doesn't run that consumer (the browser
// supervisor does), but it owns the subscription it reads from.
const browserEventRecvWindow = 20 * time.Second

var (
	// ErrClosed is returned to any call made, or outstanding, once Shutdown
	// has completed or the read loop has otherwise exited.
	ErrClosed = errors.New("transport closed")

	// ErrSessionClosed is returned to a call scoped to a session that was
	// detached or destroyed while the call was outstanding.
	ErrSessionClosed = errors.New("session closed")

	// ErrMalformedFrame is the read loop's fatal error when it receives
	// bytes that don't parse as a CDP frame at all.
	ErrMalformedFrame = errors.New("malformed cdp frame")
)

// LogFunc is the ambient logging func type, matching the teacher's
// func(string, ...interface{}) convention (browser.go's logf/errf).
type LogFunc func(string, ...any)

// Transport is the concrete C4 implementation.
type Transport struct {
	sock socket
	reg  *wire.Registry
	rt   *router.Router

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{} // closed once Shutdown has run to completion

	logf, errf LogFunc
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithLogf sets the informational logging func.
func WithLogf(f LogFunc) Option { return func(t *Transport) { t.logf = f } }

// WithErrorf sets the error logging func.
func WithErrorf(f LogFunc) Option { return func(t *Transport) { t.errf = f } }

// Dial connects to a CDP WebSocket endpoint and starts the read loop.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Transport, error) {
	c, err := dial(ctx, ForceIP(wsURL))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return newTransport(c, opts...), nil
}

// newTransport wires up a Transport around an already-connected socket and
// starts its read loop. Exposed to tests via socket fakes.
func newTransport(sock socket, opts ...Option) *Transport {
	t := &Transport{
		sock:   sock,
		reg:    wire.NewRegistry(),
		rt:     router.New(),
		closed: make(chan struct{}),
		logf:   func(string, ...any) {},
	}
	for _, o := range opts {
		o(t)
	}
	if t.errf == nil {
		t.errf = t.logf
	}
	go t.readLoop()
	return t
}

// CallOnBrowser issues a browser-scoped call and blocks until the response
// arrives, the per-call timeout elapses, or the transport shuts down.
func (t *Transport) CallOnBrowser(ctx context.Context, method string, params, res any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := t.reg.NextID()
	slot := t.reg.Begin("", id)

	payload, err := wire.EncodeCall(id, method, paramsRaw)
	if err != nil {
		t.reg.Cancel("", id)
		return fmt.Errorf("encode %s: %w", method, err)
	}
	if err := t.write(payload); err != nil {
		t.reg.Cancel("", id)
		return fmt.Errorf("write %s: %w", method, err)
	}

	return t.await(ctx, slot, res)
}

// CallOnTarget issues a session-scoped call, wrapped in
// Target.sendMessageToTarget per spec.md §4.1. The registry keys by
// (sessionID, innerID); the outer sendMessageToTarget call's own response
// (an empty ack) is intentionally never waited on — it is dropped by the
// registry with a logged warning, which is the expected, harmless path.
func (t *Transport) CallOnTarget(ctx context.Context, sessionID string, method string, params, res any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}

	outerID := t.reg.NextID()
	innerID := t.reg.NextID()
	slot := t.reg.Begin(sessionID, innerID)

	payload, err := wire.EncodeForSession(outerID, innerID, sessionID, method, paramsRaw)
	if err != nil {
		t.reg.Cancel(sessionID, innerID)
		return fmt.Errorf("encode %s for session %s: %w", method, sessionID, err)
	}
	if err := t.write(payload); err != nil {
		t.reg.Cancel(sessionID, innerID)
		return fmt.Errorf("write %s for session %s: %w", method, sessionID, err)
	}

	return t.await(ctx, slot, res)
}

func (t *Transport) await(ctx context.Context, slot <-chan wire.Outcome, res any) error {
	timer := time.NewTimer(DefaultCallTimeout)
	defer timer.Stop()

	select {
	case outcome := <-slot:
		return wire.DecodeInto(outcome, res)
	case <-timer.C:
		return fmt.Errorf("%w: call timed out after %s", context.DeadlineExceeded, DefaultCallTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return ErrClosed
	}
}

func marshalParams(params any) (wire.RawMessage, error) {
	if params == nil {
		return wire.RawMessage("{}"), nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return wire.RawMessage(b), nil
}

func (t *Transport) write(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	return t.sock.WriteMessage(websocket.TextMessage, payload)
}

// ListenBrowser returns the single browser-level event subscription.
func (t *Transport) ListenBrowser() *router.Subscription { return t.rt.Browser() }

// ListenTarget returns the subscription scoped to sessionID.
func (t *Transport) ListenTarget(sessionID string) *router.Subscription {
	return t.rt.Session(sessionID)
}

// DropSession evicts sessionID's event subscription and fails every call
// outstanding against it, used by the session manager on detach/destroy.
func (t *Transport) DropSession(sessionID string) {
	t.rt.DropSession(sessionID)
	t.reg.FailSession(sessionID, ErrSessionClosed)
}

// Shutdown is idempotent: it closes the socket, signals the read loop to
// stop, and fails every pending call. It returns once those are done.
func (t *Transport) Shutdown() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.sock.Close()
		t.reg.FailAll(ErrClosed)
		t.rt.Shutdown()
	})
	return err
}

// readLoop is the single dedicated worker that reads frames, classifies
// them through wire.Decode, and dispatches to the registry or router. It
// terminates on clean close, malformed frame, or Shutdown, matching
// spec.md §4.4.
func (t *Transport) readLoop() {
	defer t.Shutdown()

	for {
		_, raw, err := t.sock.ReadMessage()
		if err != nil {
			return
		}

		frame, err := wire.Decode(raw)
		if err != nil {
			// Malformed frame: fatal to the read loop per spec.md §4.1.
			t.errf("cdpmux: malformed frame, stopping read loop: %v", err)
			return
		}

		if frame.IsResponse() {
			outcome := wire.Outcome{Result: frame.Result}
			if frame.Err != nil {
				outcome.Err = frame.Err
			}
			if !t.reg.Complete(frame.SessionID, frame.ID, outcome) {
				t.logf("cdpmux: dropping response for unknown call id %d (session %q)", frame.ID, frame.SessionID)
			}
			continue
		}

		t.rt.Dispatch(router.Event{
			Method:    frame.Method,
			Params:    frame.Params,
			SessionID: frame.SessionID,
		})
	}
}
