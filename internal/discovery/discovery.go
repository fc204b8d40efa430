// Package discovery announces this daemon on the local network over UDP
// broadcast and maintains the peer table from announcements it hears back.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/landrop/landrop/internal/peer"
)

const (
	// DefaultAnnounceInterval is how often the daemon broadcasts itself.
	DefaultAnnounceInterval = 2 * time.Second

	// DefaultSweepInterval is how often stale peers are evicted.
	DefaultSweepInterval = 10 * time.Second

	// DefaultPeerTimeout is how long a silent peer stays in the table.
	DefaultPeerTimeout = 30 * time.Second

	// maxDatagramSize caps accepted announcements. Anything larger is
	// dropped unparsed.
	maxDatagramSize = 1024

	readBufferSize = 1500
)

// Announcement is the discovery datagram, one JSON object per broadcast.
// Address is the sender's transfer listener, host:port.
type Announcement struct {
	PeerID   uuid.UUID `json:"peer_id"`
	Address  string    `json:"address"`
	Hostname string    `json:"hostname"`
}

// Notifier receives peer lifecycle events. Callbacks run on the service's
// own loops and must not block.
type Notifier interface {
	PeerDiscovered(p peer.Peer)
	PeerRemoved(id uuid.UUID)
}

// Options configures a Service.
type Options struct {
	// Table is the peer table the service maintains.
	Table *peer.Table

	// Notifier, when set, is told about new and evicted peers.
	Notifier Notifier

	// TransferAddr is the transfer listener address advertised to peers.
	TransferAddr string

	// BroadcastAddr is where announcements are sent, usually the subnet
	// broadcast address on the discovery port.
	BroadcastAddr string

	AnnounceInterval time.Duration
	SweepInterval    time.Duration
	PeerTimeout      time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Service runs the three discovery loops: announce, listen, sweep.
type Service struct {
	table    *peer.Table
	notifier Notifier

	transferAddr  string
	broadcastAddr string

	announceInterval time.Duration
	sweepInterval    time.Duration
	peerTimeout      time.Duration

	clock clockwork.Clock
	log   *slog.Logger
}

// New creates a Service, substituting defaults for unset options.
func New(opts Options) *Service {
	if opts.AnnounceInterval <= 0 {
		opts.AnnounceInterval = DefaultAnnounceInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = DefaultPeerTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		table:            opts.Table,
		notifier:         opts.Notifier,
		transferAddr:     opts.TransferAddr,
		broadcastAddr:    opts.BroadcastAddr,
		announceInterval: opts.AnnounceInterval,
		sweepInterval:    opts.SweepInterval,
		peerTimeout:      opts.PeerTimeout,
		clock:            opts.Clock,
		log:              opts.Logger.With("component", "discovery"),
	}
}

// Run drives the loops over an already-bound discovery socket until ctx is
// cancelled. The first loop to fail stops the others. The conn should come
// from netutil.ListenBroadcast so announcements may leave the subnet
// interface.
func (s *Service) Run(ctx context.Context, conn *net.UDPConn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.Info("discovery started",
		"listen", conn.LocalAddr().String(),
		"broadcast", s.broadcastAddr,
		"advertising", s.transferAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.announceLoop(ctx, conn) })
	g.Go(func() error { return s.listenLoop(ctx, conn) })
	g.Go(func() error { return s.sweepLoop(ctx) })
	return g.Wait()
}

func (s *Service) announceLoop(ctx context.Context, conn *net.UDPConn) error {
	dest, err := net.ResolveUDPAddr("udp4", s.broadcastAddr)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(Announcement{
		PeerID:   s.table.LocalID(),
		Address:  s.transferAddr,
		Hostname: s.table.LocalHostname(),
	})
	if err != nil {
		return err
	}

	ticker := s.clock.NewTicker(s.announceInterval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteToUDP(payload, dest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient on networks without a broadcast route.
			s.log.Warn("announce failed", "dest", dest.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (s *Service) listenLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("discovery read failed", "error", err)
			continue
		}
		if n > maxDatagramSize {
			continue
		}

		var ann Announcement
		if err := json.Unmarshal(buf[:n], &ann); err != nil {
			// Anything else on the port is not ours to complain about.
			s.log.Debug("ignoring unparseable datagram", "from", from.String(), "bytes", n)
			continue
		}
		if ann.PeerID == s.table.LocalID() {
			continue
		}

		created := s.table.Upsert(ann.PeerID, ann.Address, ann.Hostname)
		if !created {
			continue
		}

		s.log.Info("peer discovered", "peer_id", ann.PeerID, "hostname", ann.Hostname, "from", from.String())
		if s.notifier != nil {
			if p, ok := s.table.Get(ann.PeerID); ok {
				s.notifier.PeerDiscovered(p)
			}
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		for _, id := range s.table.Sweep(s.peerTimeout) {
			s.log.Info("peer timed out", "peer_id", id)
			if s.notifier != nil {
				s.notifier.PeerRemoved(id)
			}
		}
	}
}
