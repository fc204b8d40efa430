// Package wsclient connects the landrop CLI to a running daemon over its
// WebSocket control socket.
package wsclient

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/landrop/landrop/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	// ErrTimeout means the daemon did not answer in time.
	ErrTimeout = errors.New("timed out waiting for the daemon")
	// ErrClosed means the connection went away mid-conversation.
	ErrClosed = errors.New("connection to the daemon closed")
)

// Client manages the WebSocket connection to the daemon.
type Client struct {
	conn      *websocket.Conn
	daemonURL string
	incoming  chan *protocol.ServerMessage
	outgoing  chan *protocol.ClientMessage
	done      chan struct{}
	closed    bool
}

// NewClient creates a client for the daemon at the given ws:// URL.
func NewClient(daemonURL string) *Client {
	return &Client{
		daemonURL: daemonURL,
		incoming:  make(chan *protocol.ServerMessage, 32),
		outgoing:  make(chan *protocol.ClientMessage, 1),
		done:      make(chan struct{}, 1),
	}
}

// Connect establishes the WebSocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.daemonURL)
	if err != nil {
		return fmt.Errorf("invalid daemon URL: %w", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect (is the daemon running?): %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.incoming <- &msg
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the daemon.
func (c *Client) Send(msg *protocol.ClientMessage) {
	c.outgoing <- msg
}

// Incoming returns the channel of daemon messages.
func (c *Client) Incoming() <-chan *protocol.ServerMessage {
	return c.incoming
}

// Await drains incoming messages until one of the wanted types arrives,
// skipping unrelated notifications. A server-side Error message comes back
// as a plain error carrying the daemon's text.
func (c *Client) Await(timeout time.Duration, types ...string) (*protocol.ServerMessage, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.incoming:
			if !ok {
				return nil, ErrClosed
			}
			if msg.Type == protocol.TypeError {
				return nil, errors.New(msg.Message)
			}
			for _, t := range types {
				if msg.Type == t {
					return msg, nil
				}
			}

		case <-deadline:
			return nil, ErrTimeout
		}
	}
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true

	close(c.done)
}
