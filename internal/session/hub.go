// Package session runs the WebSocket control plane: one hub goroutine owns
// the connected-client table, dispatches client commands, and fans out peer
// and transfer notifications.
package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/landrop/landrop/internal/discovery"
	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/transfer"
)

// pushQueueSize bounds notifications waiting for the hub loop. Overflow
// drops the notification, never the producer.
const pushQueueSize = 256

type inbound struct {
	client *Client
	msg    *protocol.ClientMessage
}

type push struct {
	// target is the receiving client; uuid.Nil fans out to everyone.
	target uuid.UUID
	msg    *protocol.ServerMessage
}

// Options configures a Hub.
type Options struct {
	Table    *peer.Table
	Registry *registry.Registry
	Engine   *transfer.Engine
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Hub is the session actor. Run is the only goroutine that touches the
// client map, so sends and disconnects never race.
type Hub struct {
	table  *peer.Table
	reg    *registry.Registry
	engine *transfer.Engine
	clock  clockwork.Clock
	log    *slog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan *inbound
	pushes     chan push

	clients map[uuid.UUID]*Client

	// ctx parents the transfer tasks dispatch spawns; they deliberately
	// outlive the session that started them.
	ctx  context.Context
	done chan struct{}
}

var _ discovery.Notifier = (*Hub)(nil)

// NewHub creates a Hub wired to the given tables and transfer engine.
func NewHub(opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		table:      opts.Table,
		reg:        opts.Registry,
		engine:     opts.Engine,
		clock:      opts.Clock,
		log:        opts.Logger.With("component", "session"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inbound),
		pushes:     make(chan push, pushQueueSize),
		clients:    make(map[uuid.UUID]*Client),
		done:       make(chan struct{}),
	}
}

// Run drives the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.ctx = ctx
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			h.clients[c.id] = c
			h.log.Info("client connected", "client_id", c.id)

		case c := <-h.unregister:
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
				h.log.Info("client disconnected", "client_id", c.id)
			}

		case in := <-h.inbound:
			h.dispatch(in.client, in.msg)

		case p := <-h.pushes:
			if p.target == uuid.Nil {
				h.deliverAll(p.msg)
			} else if c, ok := h.clients[p.target]; ok {
				h.deliver(c, p.msg)
			}
		}
	}
}

// PeerDiscovered implements discovery.Notifier: every session hears about a
// new peer.
func (h *Hub) PeerDiscovered(p peer.Peer) {
	info := protocol.PeerInfoFrom(p)
	h.push(uuid.Nil, &protocol.ServerMessage{Type: protocol.TypePeerDiscovered, Peer: &info})
}

// PeerRemoved implements discovery.Notifier.
func (h *Hub) PeerRemoved(id uuid.UUID) {
	h.push(uuid.Nil, &protocol.ServerMessage{Type: protocol.TypePeerRemoved, PeerID: &id})
}

// push queues a notification for the hub loop from another goroutine. It
// never blocks the producer.
func (h *Hub) push(target uuid.UUID, msg *protocol.ServerMessage) {
	select {
	case h.pushes <- push{target: target, msg: msg}:
	case <-h.done:
	default:
		h.log.Warn("push queue full, dropping notification", "type", msg.Type)
	}
}

// deliver hands a message to one session's send queue. A session too slow
// to drain its queue is disconnected. Hub loop only.
func (h *Hub) deliver(c *Client, msg *protocol.ServerMessage) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("send queue full, disconnecting client", "client_id", c.id)
		delete(h.clients, c.id)
		close(c.send)
	}
}

// deliverAll fans a message out to every session. Hub loop only.
func (h *Hub) deliverAll(msg *protocol.ServerMessage) {
	for _, c := range h.clients {
		h.deliver(c, msg)
	}
}
