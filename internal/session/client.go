package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/landrop/landrop/internal/protocol"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from a client.
	maxMessageSize = 64 * 1024

	// Outbound queue depth per session. A client that falls this far
	// behind is disconnected rather than buffered without bound.
	sendQueueSize = 256
)

// Client is one WebSocket session. All writes to the connection go through
// the send queue and writePump; all reads happen in readPump.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   uuid.UUID
	send chan *protocol.ServerMessage
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.New(),
		send: make(chan *protocol.ServerMessage, sendQueueSize),
	}
}

// readPump pumps decoded client messages into the hub. It owns all reads on
// the connection; exactly one runs per session.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("client read failed", "client_id", c.id, "error", err)
			}
			break
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// A bad frame does not cost the client its session.
			c.hub.log.Warn("invalid client message", "client_id", c.id, "error", err)
			continue
		}

		select {
		case c.hub.inbound <- &inbound{client: c, msg: &msg}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the send queue to the connection and keeps
// the session alive with pings. It owns all writes; exactly one runs per
// session.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
