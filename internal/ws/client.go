package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

// Client adapts a websocket connection to the hub's Subscriber interface.
// A send failure closes the connection; the hub drops the client on the
// returned error.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
	mu   sync.Mutex
	once sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send writes one merged log entry as a text message.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		c.Close()
		return err
	}
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}
