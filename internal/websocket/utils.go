package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with a write mutex. The command
// loop and the session event pump write concurrently, and gorilla
// permits only one writer at a time.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConn wraps an upgraded connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code ErrCode, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event:   EventError,
		Code:    code,
		Message: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return c.conn.ReadJSON(v)
}

// ReadMessage reads one raw message with the standard read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
