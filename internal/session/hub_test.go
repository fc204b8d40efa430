package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/transfer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) (*Hub, *peer.Table, *registry.Registry) {
	t.Helper()

	table := peer.NewTable(uuid.New(), "local-pc", clockwork.NewRealClock())
	reg := registry.New(100, clockwork.NewRealClock())
	eng := transfer.New(transfer.Options{
		DownloadDir:   filepath.Join(t.TempDir(), "downloads"),
		ChunkSize:     8192,
		MaxConcurrent: 5,
		Registry:      reg,
		Logger:        discardLogger(),
	})
	h := NewHub(Options{Table: table, Registry: reg, Engine: eng, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, table, reg
}

func connect(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{id: uuid.New(), send: make(chan *protocol.ServerMessage, sendQueueSize)}
	select {
	case h.register <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not register the client")
	}
	return c
}

func send(t *testing.T, h *Hub, c *Client, msg *protocol.ClientMessage) {
	t.Helper()
	select {
	case h.inbound <- &inbound{client: c, msg: msg}:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not accept the message")
	}
}

func recv(t *testing.T, c *Client) *protocol.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message from hub")
		return nil
	}
}

func recvNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %s", msg.Type)
	case <-time.After(150 * time.Millisecond):
	}
}

// collectUntil drains the session queue until a message of the given type
// arrives, returning everything seen.
func collectUntil(t *testing.T, c *Client, typ string) []*protocol.ServerMessage {
	t.Helper()
	var out []*protocol.ServerMessage
	deadline := time.After(10 * time.Second)
	for {
		select {
		case msg, ok := <-c.send:
			require.True(t, ok, "send queue closed")
			out = append(out, msg)
			if msg.Type == typ {
				return out
			}
		case <-deadline:
			t.Fatalf("never saw %s (got %d messages)", typ, len(out))
		}
	}
}

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// acceptAndDrain runs a compliant transfer receiver for n connections and
// returns its address.
func acceptAndDrain(t *testing.T, n int) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for i := 0; i < n; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				dec := json.NewDecoder(conn)
				enc := json.NewEncoder(conn)

				var req transfer.Message
				if dec.Decode(&req) != nil || req.Type != transfer.TypeRequest {
					return
				}
				if enc.Encode(&transfer.Message{Type: transfer.TypeAccept, TransferID: req.TransferID}) != nil {
					return
				}
				for {
					var msg transfer.Message
					if dec.Decode(&msg) != nil || msg.Type == transfer.TypeComplete || msg.Type == transfer.TypeCancel {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestPingPongInOrder(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := connect(t, h)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypePing})
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypePing})

	require.Equal(t, protocol.TypePong, recv(t, c).Type)
	require.Equal(t, protocol.TypePong, recv(t, c).Type)
}

func TestGetPeersSnapshot(t *testing.T) {
	h, table, _ := newTestHub(t)
	c := connect(t, h)

	a, b := uuid.New(), uuid.New()
	table.Upsert(a, "192.168.1.2:7879", "alpha")
	table.Upsert(b, "192.168.1.3:7879", "beta")

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeGetPeers})

	msg := recv(t, c)
	require.Equal(t, protocol.TypePeersList, msg.Type)
	require.Len(t, msg.Peers, 2)
	require.Equal(t, "alpha", msg.Peers[0].Hostname)
	require.Equal(t, "beta", msg.Peers[1].Hostname)
}

func TestGetLocalInfo(t *testing.T) {
	h, table, _ := newTestHub(t)
	c := connect(t, h)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeGetLocalInfo})

	msg := recv(t, c)
	require.Equal(t, protocol.TypeLocalInfo, msg.Type)
	require.NotNil(t, msg.PeerID)
	require.Equal(t, table.LocalID(), *msg.PeerID)
	require.Equal(t, "local-pc", msg.Hostname)
}

func TestSendFileMissingFileLeavesNoRecord(t *testing.T) {
	h, table, reg := newTestHub(t)
	c := connect(t, h)

	target := uuid.New()
	table.Upsert(target, "192.168.1.2:7879", "other")

	send(t, h, c, &protocol.ClientMessage{
		Type:     protocol.TypeSendFile,
		PeerID:   &target,
		FilePath: filepath.Join(t.TempDir(), "nope.bin"),
	})

	msg := recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Contains(t, msg.Message, "File not found")
	require.Empty(t, reg.History())
}

func TestSendFileUnknownPeer(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := connect(t, h)

	stranger := uuid.New()
	send(t, h, c, &protocol.ClientMessage{
		Type:     protocol.TypeSendFile,
		PeerID:   &stranger,
		FilePath: writeTestFile(t, "doc.txt", []byte("hi")),
	})

	msg := recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "Peer not found", msg.Message)
}

func TestSendFileLifecycle(t *testing.T) {
	h, table, reg := newTestHub(t)
	c := connect(t, h)

	addr := acceptAndDrain(t, 1)
	target := uuid.New()
	table.Upsert(target, addr, "other")

	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTestFile(t, "payload.bin", data)

	send(t, h, c, &protocol.ClientMessage{
		Type:     protocol.TypeSendFile,
		PeerID:   &target,
		FilePath: path,
	})

	msgs := collectUntil(t, c, protocol.TypeFileTransferComplete)

	first := msgs[0]
	require.Equal(t, protocol.TypeFileTransferRequest, first.Type)
	require.Equal(t, "payload.bin", first.Filename)
	require.Equal(t, int64(len(data)), first.FileSize)
	require.Equal(t, target, *first.PeerID)
	transferID := first.TransferID

	var sawProgress bool
	for _, msg := range msgs[1 : len(msgs)-1] {
		require.Equal(t, protocol.TypeFileTransferProgress, msg.Type)
		require.Equal(t, transferID, msg.TransferID)
		require.Equal(t, int64(len(data)), msg.Total)
		sawProgress = true
	}
	require.True(t, sawProgress, "no progress notifications before completion")

	last := msgs[len(msgs)-1]
	require.Equal(t, transferID, last.TransferID)
	require.Equal(t, target, *last.PeerID)

	var rec registry.Record
	for _, r := range reg.History() {
		if r.TransferID == transferID {
			rec = r
		}
	}
	require.Equal(t, registry.StatusCompleted, rec.Status)
	require.Equal(t, registry.DirectionSent, rec.Direction)
	require.Equal(t, "other", rec.Hostname)
	require.NotEmpty(t, rec.FileChecksum)
	require.True(t, rec.Verified)
}

func TestSendOutlivesSession(t *testing.T) {
	h, table, reg := newTestHub(t)
	c := connect(t, h)

	addr := acceptAndDrain(t, 1)
	target := uuid.New()
	table.Upsert(target, addr, "other")

	path := writeTestFile(t, "after-hours.bin", make([]byte, 64*1024))
	send(t, h, c, &protocol.ClientMessage{
		Type:     protocol.TypeSendFile,
		PeerID:   &target,
		FilePath: path,
	})

	first := recv(t, c)
	require.Equal(t, protocol.TypeFileTransferRequest, first.Type)

	// The client leaves mid-transfer; the send keeps going without it.
	select {
	case h.unregister <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not unregister the client")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, r := range reg.History() {
			if r.TransferID == first.TransferID && r.Status == registry.StatusCompleted {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("transfer did not finish after the session closed")
}

func TestBroadcastFanOut(t *testing.T) {
	h, table, reg := newTestHub(t)
	c := connect(t, h)

	for _, hostname := range []string{"alpha", "beta", "gamma"} {
		table.Upsert(uuid.New(), acceptAndDrain(t, 1), hostname)
	}

	path := writeTestFile(t, "blast.bin", make([]byte, 30*1024))
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeBroadcastFile, FilePath: path})

	start := recv(t, c)
	require.Equal(t, protocol.TypeBroadcastTransferStart, start.Type)
	require.Equal(t, 3, start.TotalPeers)
	require.Equal(t, "blast.bin", start.Filename)
	broadcastID := start.TransferID

	msgs := collectUntil(t, c, protocol.TypeBroadcastTransferComplete)

	var completedSeen []int
	for _, msg := range msgs {
		switch msg.Type {
		case protocol.TypeBroadcastTransferProgress:
			require.Equal(t, broadcastID, msg.TransferID)
			require.Equal(t, 3, msg.TotalPeers)
			completedSeen = append(completedSeen, msg.CompletedPeers)
		case protocol.TypeBroadcastTransferComplete:
			require.Equal(t, broadcastID, msg.TransferID)
			require.Equal(t, 3, msg.SuccessfulPeers)
			require.Equal(t, 0, msg.FailedPeers)
		default:
			t.Fatalf("unexpected message %s during broadcast", msg.Type)
		}
	}
	require.Equal(t, []int{1, 2, 3}, completedSeen)

	var sent int
	for _, r := range reg.History() {
		if r.Direction == registry.DirectionSent {
			require.Equal(t, registry.StatusCompleted, r.Status)
			sent++
		}
	}
	require.Equal(t, 3, sent)
}

func TestBroadcastReportsFailures(t *testing.T) {
	h, table, _ := newTestHub(t)
	c := connect(t, h)

	table.Upsert(uuid.New(), acceptAndDrain(t, 1), "alpha")
	table.Upsert(uuid.New(), acceptAndDrain(t, 1), "beta")
	// Nothing listens here; the dial is refused immediately.
	table.Upsert(uuid.New(), "127.0.0.1:9", "zombie")

	path := writeTestFile(t, "blast.bin", make([]byte, 8*1024))
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeBroadcastFile, FilePath: path})

	start := recv(t, c)
	require.Equal(t, protocol.TypeBroadcastTransferStart, start.Type)

	msgs := collectUntil(t, c, protocol.TypeBroadcastTransferComplete)

	var progress, errors int
	for _, msg := range msgs {
		switch msg.Type {
		case protocol.TypeBroadcastTransferProgress:
			progress++
		case protocol.TypeFileTransferError:
			require.Equal(t, start.TransferID, msg.TransferID)
			errors++
		case protocol.TypeBroadcastTransferComplete:
			require.Equal(t, 2, msg.SuccessfulPeers)
			require.Equal(t, 1, msg.FailedPeers)
		}
	}
	require.Equal(t, 3, progress)
	require.Equal(t, 1, errors)
}

func TestBroadcastWithoutPeers(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := connect(t, h)

	path := writeTestFile(t, "alone.bin", []byte("data"))
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeBroadcastFile, FilePath: path})

	msg := recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "No peers available for broadcast", msg.Message)
}

func TestChatRouting(t *testing.T) {
	h, table, _ := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	// No target: everyone hears it.
	send(t, h, a, &protocol.ClientMessage{Type: protocol.TypeSendChat, Message: "hello all"})
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		require.Equal(t, protocol.TypeChatMessage, msg.Type)
		require.Equal(t, "hello all", msg.Message)
		require.Equal(t, table.LocalID(), msg.FromPeerID)
		require.Equal(t, "local-pc", msg.FromHostname)
		require.NotZero(t, msg.Timestamp)
	}

	// A remote target: sessions here are bound to the local peer, so the
	// sender only gets its own echo.
	stranger := uuid.New()
	send(t, h, a, &protocol.ClientMessage{Type: protocol.TypeSendChat, PeerID: &stranger, Message: "psst"})
	msg := recv(t, a)
	require.Equal(t, "psst", msg.Message)
	require.Equal(t, stranger, *msg.ToPeerID)
	recvNothing(t, b)

	// Targeting the local peer reaches every session.
	local := table.LocalID()
	send(t, h, b, &protocol.ClientMessage{Type: protocol.TypeSendChat, PeerID: &local, Message: "note to self"})
	require.Equal(t, "note to self", recv(t, a).Message)
	require.Equal(t, "note to self", recv(t, b).Message)
}

func TestTransferControlAcks(t *testing.T) {
	h, _, reg := newTestHub(t)
	c := connect(t, h)

	id := uuid.New()
	require.NoError(t, reg.Start(registry.Record{
		TransferID: id,
		Filename:   "slow.bin",
		FileSize:   1 << 20,
		Direction:  registry.DirectionSent,
	}))

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypePauseTransfer, TransferID: id})
	ack := recv(t, c)
	require.Equal(t, protocol.TypeTransferPaused, ack.Type)
	require.Equal(t, id, ack.TransferID)
	rec, ok := reg.Get(id)
	require.True(t, ok)
	require.Equal(t, registry.StatusPaused, rec.Status)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeResumeTransfer, TransferID: id})
	require.Equal(t, protocol.TypeTransferResumed, recv(t, c).Type)
	rec, _ = reg.Get(id)
	require.Equal(t, registry.StatusInProgress, rec.Status)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeCancelTransfer, TransferID: id})
	require.Equal(t, protocol.TypeTransferCancelled, recv(t, c).Type)
	_, ok = reg.Get(id)
	require.False(t, ok)

	// The acknowledgement is unconditional, even for unknown ids.
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeCancelTransfer, TransferID: uuid.New()})
	require.Equal(t, protocol.TypeTransferCancelled, recv(t, c).Type)
}

func TestTransferStats(t *testing.T) {
	h, _, reg := newTestHub(t)
	c := connect(t, h)

	id := uuid.New()
	require.NoError(t, reg.Start(registry.Record{
		TransferID: id,
		Filename:   "big.iso",
		FileSize:   1000,
		Direction:  registry.DirectionSent,
	}))
	reg.UpdateProgress(id, 250)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeGetTransferStats, TransferID: id})
	msg := recv(t, c)
	require.Equal(t, protocol.TypeTransferStats, msg.Type)
	require.Equal(t, id, msg.TransferID)
	require.Equal(t, registry.StatusInProgress, msg.Status)
	require.Equal(t, int64(250), msg.Progress)
	require.Equal(t, int64(1000), msg.Total)
	require.NotNil(t, msg.StartTime)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeGetTransferStats, TransferID: uuid.New()})
	msg = recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "Transfer not found", msg.Message)
}

func TestDirectoryCommandsReturnPoliteErrors(t *testing.T) {
	h, table, _ := newTestHub(t)
	c := connect(t, h)

	target := uuid.New()
	table.Upsert(target, "192.168.1.2:7879", "other")

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeSendDirectory, PeerID: &target, DirPath: "/tmp"})
	msg := recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "Directory transfer not yet implemented. Please archive the directory first.", msg.Message)

	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypeBroadcastDirectory, DirPath: "/tmp"})
	msg = recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "Directory broadcast not yet implemented. Please archive the directory first.", msg.Message)
}

func TestUnknownMessageType(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := connect(t, h)

	send(t, h, c, &protocol.ClientMessage{Type: "MakeCoffee"})
	msg := recv(t, c)
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, "Unknown message type: MakeCoffee", msg.Message)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	h, _, _ := newTestHub(t)

	c := &Client{id: uuid.New(), send: make(chan *protocol.ServerMessage, 1)}
	select {
	case h.register <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not register the client")
	}

	// First reply fills the queue; the second overflows it.
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypePing})
	send(t, h, c, &protocol.ClientMessage{Type: protocol.TypePing})

	msg, ok := <-c.send
	require.True(t, ok)
	require.Equal(t, protocol.TypePong, msg.Type)

	select {
	case _, ok := <-c.send:
		require.False(t, ok, "queue should be closed after overflow")
	case <-time.After(2 * time.Second):
		t.Fatal("queue never closed")
	}
}
