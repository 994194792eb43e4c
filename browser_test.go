package cdpmux

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// scriptedServer drives a fake Chrome endpoint from a handler func that
// receives every decoded request id/method and can push arbitrary frames
// back over the same connection, grounded directly on spec.md §8's fake
// WebSocket server seed test scenarios.
type scriptedServer struct {
	srv  *httptest.Server
	conn chan *websocket.Conn
}

func newScriptedServer(t *testing.T, onMessage func(conn *websocket.Conn, id int64, method string, raw []byte)) *scriptedServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				id := extractFrameID(raw)
				method := extractFrameMethod(raw)
				onMessage(conn, id, method, raw)
			}
		}()
	}))

	return &scriptedServer{srv: srv, conn: connCh}
}

func (s *scriptedServer) wsURL() string { return "ws" + s.srv.URL[len("http"):] }
func (s *scriptedServer) close()        { s.srv.Close() }

func extractFrameID(raw []byte) int64 {
	return extractAfter(raw, `"id":`)
}

func extractAfter(raw []byte, key string) int64 {
	s := string(raw)
	i := -1
	for j := 0; j+len(key) <= len(s); j++ {
		if s[j:j+len(key)] == key {
			i = j
			break
		}
	}
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

func extractFrameMethod(raw []byte) string {
	const key = `"method":"`
	s := string(raw)
	i := -1
	for j := 0; j+len(key) <= len(s); j++ {
		if s[j:j+len(key)] == key {
			i = j
			break
		}
	}
	if i == -1 {
		return ""
	}
	i += len(key)
	end := i
	for end < len(s) && s[end] != '"' {
		end++
	}
	return s[i:end]
}

// newReadyBrowser launches a fake server that acks every call and announces
// a single page tab right after setDiscoverTargets, then dials a real
// Browser against it.
func newReadyBrowser(t *testing.T) (*Browser, *scriptedServer) {
	t.Helper()

	var announced bool
	srv := newScriptedServer(t, func(conn *websocket.Conn, id int64, method string, _ []byte) {
		if id == 0 {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"id":%d,"result":{}}`, id)))
		if method == "Target.setDiscoverTargets" && !announced {
			announced = true
			conn.WriteMessage(websocket.TextMessage, []byte(
				`{"method":"Target.targetCreated","params":{"targetInfo":{"targetId":"T1","type":"page"}}}`))
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := New(ctx, srv.wsURL())
	if err != nil {
		srv.close()
		t.Fatalf("New: %v", err)
	}
	return b, srv
}

func TestNewWaitsForInitialTab(t *testing.T) {
	t.Parallel()

	b, srv := newReadyBrowser(t)
	defer srv.close()
	defer b.Shutdown()

	tabs := b.Tabs()
	if len(tabs) != 1 || tabs[0].TargetID() != "T1" {
		t.Fatalf("got tabs %+v, want one tab T1", tabs)
	}
}

func TestNewFailsWithoutInitialTab(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, func(conn *websocket.Conn, id int64, _ string, _ []byte) {
		if id == 0 {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"id":%d,"result":{}}`, id)))
	})
	defer srv.close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := New(ctx, srv.wsURL())
	if err == nil {
		t.Fatal("expected an error when no initial tab ever appears")
	}
}

func TestTargetDestroyedRemovesTab(t *testing.T) {
	t.Parallel()

	b, srv := newReadyBrowser(t)
	defer srv.close()
	defer b.Shutdown()

	if len(b.Tabs()) != 1 {
		t.Fatalf("expected one tab before destruction")
	}

	conn := <-srv.conn
	conn.WriteMessage(websocket.TextMessage, []byte(
		`{"method":"Target.targetDestroyed","params":{"targetId":"T1"}}`))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(b.Tabs()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tab T1 was not removed after targetDestroyed")
}

func TestShutdownIsOrderedAndIdempotent(t *testing.T) {
	t.Parallel()

	b, srv := newReadyBrowser(t)
	defer srv.close()

	done := make(chan error, 1)
	go func() { done <- b.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}

	if err := b.Shutdown(); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got %v", err)
	}
}
