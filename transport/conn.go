package transport

import (
	"context"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	// DefaultReadBufferSize is the default maximum read buffer size.
	DefaultReadBufferSize = 25 * 1024 * 1024

	// DefaultWriteBufferSize is the default maximum write buffer size.
	DefaultWriteBufferSize = 10 * 1024 * 1024
)

// socket is the minimal interface the transport needs from a WebSocket
// connection, so the read loop and writer can be tested against a fake.
// Grounded on the teacher's conn.go, which wraps *websocket.Conn directly;
// this core narrows that to just what C4 uses.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// conn wraps a gorilla/websocket.Conn. Unlike the teacher's conn.go, this
// core doesn't hand-roll easyjson buffer reuse at this layer — that
// optimization now lives in the wire package's Frame codec, which is reused
// across both browser- and session-scoped traffic instead of once per
// physical connection.
type conn struct {
	ws *websocket.Conn
}

// dial connects to urlstr using gorilla/websocket, matching the teacher's
// DialContext in conn.go.
func dial(ctx context.Context, urlstr string) (*conn, error) {
	d := &websocket.Dialer{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
	}
	ws, _, err := d.DialContext(ctx, urlstr, nil)
	if err != nil {
		return nil, err
	}
	return &conn{ws: ws}, nil
}

func (c *conn) ReadMessage() (int, []byte, error) { return c.ws.ReadMessage() }
func (c *conn) WriteMessage(mt int, p []byte) error {
	return c.ws.WriteMessage(mt, p)
}
func (c *conn) Close() error { return c.ws.Close() }

// ForceIP forces the host component in urlstr to be an IP address. Since
// Chrome 66+, CDP clients must send the Host header as an IP address or
// "localhost". Grounded verbatim on the teacher's conn.go ForceIP.
func ForceIP(urlstr string) string {
	if i := strings.Index(urlstr, "://"); i != -1 {
		scheme := urlstr[:i+3]
		host, port, path := urlstr[len(scheme)+3:], "", ""
		if i := strings.Index(host, "/"); i != -1 {
			host, path = host[:i], host[i:]
		}
		if i := strings.Index(host, ":"); i != -1 {
			host, port = host[:i], host[i:]
		}
		if addr, err := net.ResolveIPAddr("ip", host); err == nil {
			urlstr = scheme + addr.IP.String() + port + path
		}
	}
	return urlstr
}
