// Package peer tracks the LAN peers this daemon currently knows about.
package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Peer is one discovered daemon on the LAN.
type Peer struct {
	// ID is the peer's process-lifetime UUID.
	ID uuid.UUID

	// Address is the host:port of the peer's transfer listener.
	Address string

	// Hostname is the peer's self-reported hostname.
	Hostname string

	// LastSeen is the time of the most recent advertisement.
	LastSeen time.Time
}

// Table maps peer id to record and owns the local identity. It is safe for
// concurrent use; all reads hand out copies and no I/O happens under the
// lock.
type Table struct {
	localID       uuid.UUID
	localHostname string
	clock         clockwork.Clock

	mu    sync.RWMutex
	peers map[uuid.UUID]Peer
}

// NewTable creates an empty table for a daemon identified by localID.
func NewTable(localID uuid.UUID, localHostname string, clock clockwork.Clock) *Table {
	return &Table{
		localID:       localID,
		localHostname: localHostname,
		clock:         clock,
		peers:         make(map[uuid.UUID]Peer),
	}
}

// LocalID returns the daemon's own peer id.
func (t *Table) LocalID() uuid.UUID { return t.localID }

// LocalHostname returns the daemon's own hostname.
func (t *Table) LocalHostname() string { return t.localHostname }

// Upsert inserts or refreshes a peer record, stamping its LastSeen. It
// reports whether a new entry was created. Advertisements carrying the local
// id are ignored; the local daemon is never its own peer.
func (t *Table) Upsert(id uuid.UUID, address, hostname string) bool {
	if id == t.localID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.peers[id]
	t.peers[id] = Peer{
		ID:       id,
		Address:  address,
		Hostname: hostname,
		LastSeen: t.clock.Now(),
	}
	return !exists
}

// Remove drops a peer if present.
func (t *Table) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

// Get returns a copy of the record for id.
func (t *Table) Get(id uuid.UUID) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p, ok
}

// List returns a snapshot of all peers, sorted by hostname then id so
// repeated calls give stable output.
func (t *Table) List() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Sweep evicts every peer not seen within timeout and returns the evicted
// ids.
func (t *Table) Sweep(timeout time.Duration) []uuid.UUID {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []uuid.UUID
	for id, p := range t.peers {
		if now.Sub(p.LastSeen) >= timeout {
			delete(t.peers, id)
			removed = append(removed, id)
		}
	}
	return removed
}
