package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxMessage   = 64 * 1024
	defaultPingGap = 30 * time.Second
)

// ClientConn is the browser side of a session. WriteJSON is only called from
// one goroutine; Close may be called concurrently with both.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Close() error
	RemoteAddr() string
}

// WebSocketConn adapts a gorilla WebSocket to ClientConn, keeping it alive
// with pings and dropping peers that stop answering.
type WebSocketConn struct {
	ws       *websocket.Conn
	interval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketConn starts the ping loop for ws.
func NewWebSocketConn(ws *websocket.Conn, pingInterval time.Duration) *WebSocketConn {
	if pingInterval <= 0 {
		pingInterval = defaultPingGap
	}
	c := &WebSocketConn{ws: ws, interval: pingInterval, done: make(chan struct{})}

	pongWait := pingInterval * 2
	ws.SetReadLimit(wsMaxMessage)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()
	return c
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ReadMessage returns the next text or binary frame.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WebSocketConn) WriteJSON(v interface{}) error {
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteJSON(v)
}

// Close sends a close frame and closes the socket. It is idempotent.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
