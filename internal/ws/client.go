// ABOUTME: WebSocket client connection implementing the registry Conn interface
// ABOUTME: Buffered outbound queue with a write pump; slow readers drop frames, not the gateway

package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Envelope is the JSON frame exchanged over the socket
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one WebSocket connection. Send is safe from any goroutine; the
// write pump is the only goroutine that touches the underlying connection
// for writes.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ID returns the connection's identity for registry bindings
func (c *Client) ID() string { return c.id }

// Send queues an event for delivery. Never blocks: a full buffer means the
// peer stopped reading, so the frame is dropped and the connection torn down.
func (c *Client) Send(ev wire.Event) error {
	env := Envelope{Event: ev.Name}
	if ev.Data != nil {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return err
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return websocket.ErrCloseSent
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("send buffer full, closing connection", "conn_id", c.id)
		c.close()
		return websocket.ErrCloseSent
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings. Exits on write failure or close.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
