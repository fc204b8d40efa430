package discovery_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/landrop/landrop/internal/discovery"
	"github.com/landrop/landrop/internal/netutil"
	"github.com/landrop/landrop/internal/peer"
)

type recordingNotifier struct {
	discovered chan peer.Peer
	removed    chan uuid.UUID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		discovered: make(chan peer.Peer, 8),
		removed:    make(chan uuid.UUID, 8),
	}
}

func (n *recordingNotifier) PeerDiscovered(p peer.Peer) { n.discovered <- p }
func (n *recordingNotifier) PeerRemoved(id uuid.UUID)   { n.removed <- id }

// startService binds a loopback discovery socket and runs the service
// against it, returning the address announcements should be sent to.
func startService(t *testing.T, opts discovery.Options) (string, *recordingNotifier) {
	t.Helper()

	notifier := newRecordingNotifier()
	opts.Notifier = notifier
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.BroadcastAddr == "" {
		// The discard port; loopback tests have no subnet to announce on.
		opts.BroadcastAddr = "127.0.0.1:9"
	}
	if opts.TransferAddr == "" {
		opts.TransferAddr = "127.0.0.1:7879"
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := netutil.ListenBroadcast(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	svc := discovery.New(opts)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return conn.LocalAddr().String(), notifier
}

func announce(t *testing.T, addr string, ann discovery.Announcement) {
	t.Helper()
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(ann)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestServiceDiscoversNewPeer(t *testing.T) {
	table := peer.NewTable(uuid.New(), "local-pc", clockwork.NewRealClock())
	addr, notifier := startService(t, discovery.Options{Table: table})

	other := uuid.New()
	announce(t, addr, discovery.Announcement{
		PeerID:   other,
		Address:  "192.168.1.9:7879",
		Hostname: "other-pc",
	})

	select {
	case p := <-notifier.discovered:
		require.Equal(t, other, p.ID)
		require.Equal(t, "192.168.1.9:7879", p.Address)
		require.Equal(t, "other-pc", p.Hostname)
	case <-time.After(2 * time.Second):
		t.Fatal("no discovery event for a fresh announcement")
	}

	got, ok := table.Get(other)
	require.True(t, ok)
	require.Equal(t, "other-pc", got.Hostname)

	// A repeat announcement refreshes the entry without a second event.
	announce(t, addr, discovery.Announcement{
		PeerID:   other,
		Address:  "192.168.1.9:7879",
		Hostname: "other-pc",
	})
	select {
	case <-notifier.discovered:
		t.Fatal("known peer produced a second discovery event")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestServiceDropsJunkAnnouncements(t *testing.T) {
	local := uuid.New()
	table := peer.NewTable(local, "local-pc", clockwork.NewRealClock())
	addr, notifier := startService(t, discovery.Options{Table: table})

	// Not JSON at all.
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("definitely not json"))
	require.NoError(t, err)
	conn.Close()

	// Valid JSON, but over the datagram cap.
	announce(t, addr, discovery.Announcement{
		PeerID:   uuid.New(),
		Address:  "192.168.1.10:7879",
		Hostname: strings.Repeat("x", 1100),
	})

	// Our own announcement looped back.
	announce(t, addr, discovery.Announcement{
		PeerID:   local,
		Address:  "127.0.0.1:7879",
		Hostname: "local-pc",
	})

	// The listener survives all of it and still accepts a real peer.
	other := uuid.New()
	announce(t, addr, discovery.Announcement{
		PeerID:   other,
		Address:  "192.168.1.11:7879",
		Hostname: "survivor",
	})

	select {
	case p := <-notifier.discovered:
		require.Equal(t, other, p.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("listener stopped accepting after junk datagrams")
	}
	require.Len(t, table.List(), 1)
}

func TestServiceSweepsSilentPeers(t *testing.T) {
	table := peer.NewTable(uuid.New(), "local-pc", clockwork.NewRealClock())
	addr, notifier := startService(t, discovery.Options{
		Table:         table,
		SweepInterval: 25 * time.Millisecond,
		PeerTimeout:   60 * time.Millisecond,
	})

	other := uuid.New()
	announce(t, addr, discovery.Announcement{
		PeerID:   other,
		Address:  "192.168.1.12:7879",
		Hostname: "flaky-pc",
	})

	select {
	case <-notifier.discovered:
	case <-time.After(2 * time.Second):
		t.Fatal("peer never discovered")
	}

	select {
	case id := <-notifier.removed:
		require.Equal(t, other, id)
	case <-time.After(2 * time.Second):
		t.Fatal("silent peer never swept")
	}
	_, ok := table.Get(other)
	require.False(t, ok)
}

func TestServiceAnnouncesItself(t *testing.T) {
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()

	localID := uuid.New()
	table := peer.NewTable(localID, "local-pc", clockwork.NewRealClock())
	startService(t, discovery.Options{
		Table:         table,
		TransferAddr:  "192.168.1.5:7879",
		BroadcastAddr: sink.LocalAddr().String(),
	})

	require.NoError(t, sink.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := sink.ReadFromUDP(buf)
	require.NoError(t, err)

	var ann discovery.Announcement
	require.NoError(t, json.Unmarshal(buf[:n], &ann))
	require.Equal(t, localID, ann.PeerID)
	require.Equal(t, "192.168.1.5:7879", ann.Address)
	require.Equal(t, "local-pc", ann.Hostname)
	require.LessOrEqual(t, n, 1024)
}
