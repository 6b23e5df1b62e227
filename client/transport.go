package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// Conn is a framed connection to the board server.
type Conn interface {
	ReadFrame() (protocol.Frame, error)
	WriteFrame(f protocol.Frame) error
	Close() error
}

// Dialer opens connections to the board server.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the server's websocket endpoint.
type WSDialer struct {
	URL    string
	Header http.Header
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for a ws:// or wss:// URL.
func NewWSDialer(url string) *WSDialer {
	return &WSDialer{
		URL: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial opens a websocket connection.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", task.ErrTransport, d.URL, err)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a websocket connection to Conn.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) ReadFrame() (protocol.Frame, error) {
	var f protocol.Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: read: %w", task.ErrTransport, err)
	}
	return f, nil
}

func (c *wsConn) WriteFrame(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %w", task.ErrTransport, err)
	}
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: write: %w", task.ErrTransport, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}
