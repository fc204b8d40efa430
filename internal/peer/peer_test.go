package peer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/landrop/landrop/internal/peer"
)

func newTable(t *testing.T) (*peer.Table, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return peer.NewTable(uuid.New(), "local-host", clock), clock
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	table, clock := newTable(t)
	id := uuid.New()

	require.True(t, table.Upsert(id, "192.168.1.5:7879", "kitchen"))

	clock.Advance(3 * time.Second)
	require.False(t, table.Upsert(id, "192.168.1.5:7879", "kitchen-renamed"))

	got, ok := table.Get(id)
	require.True(t, ok)
	require.Equal(t, "kitchen-renamed", got.Hostname)
	require.Equal(t, clock.Now(), got.LastSeen)
	require.Len(t, table.List(), 1)
}

func TestUpsertIgnoresLocalID(t *testing.T) {
	table, _ := newTable(t)

	require.False(t, table.Upsert(table.LocalID(), "10.0.0.1:7879", "impostor"))
	require.Empty(t, table.List())

	_, ok := table.Get(table.LocalID())
	require.False(t, ok)
}

func TestRemove(t *testing.T) {
	table, _ := newTable(t)
	id := uuid.New()
	table.Upsert(id, "10.0.0.2:7879", "den")

	table.Remove(id)
	_, ok := table.Get(id)
	require.False(t, ok)

	// Removing an absent peer is a no-op.
	table.Remove(id)
}

func TestListSortedSnapshot(t *testing.T) {
	table, _ := newTable(t)
	table.Upsert(uuid.New(), "10.0.0.3:7879", "zebra")
	table.Upsert(uuid.New(), "10.0.0.4:7879", "alpha")
	table.Upsert(uuid.New(), "10.0.0.5:7879", "mango")

	list := table.List()
	require.Len(t, list, 3)
	require.Equal(t, "alpha", list[0].Hostname)
	require.Equal(t, "mango", list[1].Hostname)
	require.Equal(t, "zebra", list[2].Hostname)

	// Mutating the snapshot must not touch the table.
	list[0].Hostname = "mutated"
	require.Equal(t, "alpha", table.List()[0].Hostname)
}

func TestSweepEvictsStalePeers(t *testing.T) {
	table, clock := newTable(t)
	stale := uuid.New()
	fresh := uuid.New()

	table.Upsert(stale, "10.0.0.6:7879", "stale")
	clock.Advance(25 * time.Second)
	table.Upsert(fresh, "10.0.0.7:7879", "fresh")
	clock.Advance(5 * time.Second) // stale is now 30s old, fresh 5s

	removed := table.Sweep(30 * time.Second)
	require.Equal(t, []uuid.UUID{stale}, removed)

	// No survivor may be at or beyond the timeout.
	for _, p := range table.List() {
		require.Less(t, clock.Now().Sub(p.LastSeen), 30*time.Second)
	}

	_, ok := table.Get(fresh)
	require.True(t, ok)
}

func TestSweepEmptyTable(t *testing.T) {
	table, _ := newTable(t)
	require.Empty(t, table.Sweep(30*time.Second))
}

func TestConcurrentAccess(t *testing.T) {
	table, _ := newTable(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table.Upsert(uuid.New(), "10.0.0.8:7879", "racer")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table.List()
				table.Sweep(time.Minute)
			}
		}()
	}
	wg.Wait()
}
