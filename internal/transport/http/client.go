package http

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Client is one websocket connection. joinedRoom/studentID/hostedRoom
// are touched only by the client's own read loop, so they need no lock.
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan outbound
	logger *zap.Logger

	joinedRoom string
	studentID  string
	hostedRoom string
}

func newClient(id string, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		send:   make(chan outbound, 32),
		logger: logger,
	}
}

// enqueue hands a message to the writer, dropping it if the client's
// buffer is full rather than blocking the sender.
func (c *Client) enqueue(msg outbound) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping message for slow client",
			zap.String("conn_id", c.ID),
			zap.String("event", msg.Type))
	}
}

// writePump is the sole writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// readPump feeds inbound messages into the router until the connection
// drops, then reports the disconnect.
func (c *Client) readPump(router *Router) {
	defer func() {
		router.HandleDisconnect(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		router.Dispatch(c, msg)
	}
}
