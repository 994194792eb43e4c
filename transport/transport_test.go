package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSocket is an in-process stand-in for the WebSocket connection, letting
// these tests drive the read loop with scripted frames instead of a real
// server. Grounded on spec.md §8's seed test scenarios, which describe a
// fake WebSocket server rather than a real Chrome instance.
type fakeSocket struct {
	mu     sync.Mutex
	toRead [][]byte
	readCh chan struct{}
	closed bool

	written [][]byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{readCh: make(chan struct{}, 1)}
}

func (f *fakeSocket) push(msg []byte) {
	f.mu.Lock()
	f.toRead = append(f.toRead, msg)
	f.mu.Unlock()
	select {
	case f.readCh <- struct{}{}:
	default:
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, nil, errors.New("fake socket closed")
		}
		if len(f.toRead) > 0 {
			msg := f.toRead[0]
			f.toRead = f.toRead[1:]
			f.mu.Unlock()
			return 0, msg, nil
		}
		f.mu.Unlock()
		<-f.readCh
	}
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake socket closed")
	}
	cp := append([]byte(nil), data...)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	select {
	case f.readCh <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeSocket) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

// echoServer answers every CallOnBrowser-shaped request it sees on sock with
// a trivial {"id":...,"result":{}} response, simulating scenario 1 from
// spec.md §8 (echo a simple request/response pair).
func echoServer(t *testing.T, sock *fakeSocket, stop <-chan struct{}) {
	t.Helper()
	go func() {
		seen := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			sock.mu.Lock()
			n := len(sock.written)
			sock.mu.Unlock()
			if n > seen {
				sock.mu.Lock()
				reqs := sock.written[seen:]
				seen = n
				sock.mu.Unlock()
				for _, raw := range reqs {
					id := extractID(raw)
					if id == 0 {
						continue
					}
					sock.push([]byte(fmt.Sprintf(`{"id":%d,"result":{}}`, id)))
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

// extractID pulls the leading "id" field out of a JSON object without
// importing encoding/json, good enough for these hand-built request bodies.
func extractID(raw []byte) int64 {
	const key = `"id":`
	s := string(raw)
	i := indexOf(s, key)
	if i == -1 {
		return 0
	}
	i += len(key)
	var n int64
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	return n
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestCallOnBrowserEcho(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	stop := make(chan struct{})
	defer close(stop)
	echoServer(t, sock, stop)

	tr := newTransport(sock)
	defer tr.Shutdown()

	var res struct{}
	if err := tr.CallOnBrowser(context.Background(), "Target.getVersion", nil, &res); err != nil {
		t.Fatal(err)
	}
}

func TestCallOnBrowserConcurrentCorrelation(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	stop := make(chan struct{})
	defer close(stop)
	echoServer(t, sock, stop)

	tr := newTransport(sock)
	defer tr.Shutdown()

	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var res struct{}
			errs[i] = tr.CallOnBrowser(context.Background(), "Target.getVersion", nil, &res)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestCallOnTargetSessionIsolation(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)
	defer tr.Shutdown()

	subA := tr.ListenTarget("A")
	subB := tr.ListenTarget("B")

	wrapped := `{"method":"Target.receivedMessageFromTarget","params":{"sessionId":"A","message":"{\"method\":\"Page.loadEventFired\"}"}}`
	sock.push([]byte(wrapped))

	select {
	case ev := <-subA.C():
		if ev.Method != "Page.loadEventFired" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session A event")
	}

	select {
	case ev := <-subB.C():
		t.Fatalf("session B should not receive session A's event, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownMidCallReturnsPromptly(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)

	done := make(chan error, 1)
	go func() {
		var res struct{}
		done <- tr.CallOnBrowser(context.Background(), "Target.getVersion", nil, &res)
	}()

	// Give the call a moment to register before shutting the transport down.
	time.Sleep(10 * time.Millisecond)
	if err := tr.Shutdown(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("got %v, want ErrClosed", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("call did not return within 100ms of shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)

	if err := tr.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Shutdown(); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got %v", err)
	}
}

func TestCallAfterShutdownFails(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)
	if err := tr.Shutdown(); err != nil {
		t.Fatal(err)
	}

	var res struct{}
	err := tr.CallOnBrowser(context.Background(), "Target.getVersion", nil, &res)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestDropSessionFailsOutstandingCalls(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)
	defer tr.Shutdown()

	done := make(chan error, 1)
	go func() {
		var res struct{}
		done <- tr.CallOnTarget(context.Background(), "S1", "Page.navigate", nil, &res)
	}()
	time.Sleep(10 * time.Millisecond)

	tr.DropSession("S1")

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("got %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("call did not fail after DropSession")
	}
}

func TestMalformedFrameStopsReadLoop(t *testing.T) {
	t.Parallel()

	sock := newFakeSocket()
	tr := newTransport(sock)

	sock.push([]byte(`{"neither":"id-nor-method"}`))

	select {
	case <-tr.closed:
	case <-time.After(time.Second):
		t.Fatal("expected a malformed frame to trigger shutdown")
	}
}
