// Package registry keeps the daemon's transfer records: everything currently
// moving plus a bounded history of finished transfers.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Status is the lifecycle state of a transfer. The constants are the exact
// strings clients see on the wire.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Direction says which way the file moved relative to this daemon.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// ErrDuplicateTransfer is returned when a transfer id is started twice.
var ErrDuplicateTransfer = errors.New("transfer id already registered")

// Record is one transfer, active or finished.
type Record struct {
	TransferID uuid.UUID  `json:"transfer_id"`
	PeerID     *uuid.UUID `json:"peer_id,omitempty"`

	// Hostname is the counterparty's hostname, when known.
	Hostname string `json:"hostname"`

	Filename  string    `json:"filename"`
	FilePath  string    `json:"file_path,omitempty"`
	FileSize  int64     `json:"file_size"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`

	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationSeconds  int64      `json:"duration_seconds,omitempty"`
	SpeedBytesPerSec int64      `json:"speed_bytes_per_sec,omitempty"`

	// FileChecksum is the lowercase hex SHA-256 of the file contents,
	// filled on a completed transfer.
	FileChecksum string `json:"file_checksum,omitempty"`
	Verified     bool   `json:"verified"`

	// BytesTransferred counts payload bytes moved so far.
	BytesTransferred int64 `json:"bytes_transferred"`
}

// Registry owns the active map and the completed FIFO. A terminal transition
// (complete, fail, cancel) moves the record from active to completed exactly
// once, so a transfer id never appears twice in history.
type Registry struct {
	clock      clockwork.Clock
	maxHistory int

	mu        sync.Mutex
	active    map[uuid.UUID]*Record
	cancels   map[uuid.UUID]context.CancelFunc
	completed []*Record // oldest first
}

// DefaultMaxHistory bounds the finished-transfer history the daemon keeps.
const DefaultMaxHistory = 1000

// New creates a registry keeping at most maxHistory finished records.
func New(maxHistory int, clock clockwork.Clock) *Registry {
	return &Registry{
		clock:      clock,
		maxHistory: maxHistory,
		active:     make(map[uuid.UUID]*Record),
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start registers a new active transfer. The record's CreatedAt and Status
// are stamped here.
func (r *Registry) Start(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[rec.TransferID]; ok {
		return ErrDuplicateTransfer
	}
	rec.CreatedAt = r.clock.Now()
	rec.Status = StatusInProgress
	r.active[rec.TransferID] = &rec
	return nil
}

// AttachCancel associates a cancel function with an active transfer so a
// client-issued CancelTransfer can stop the running sender.
func (r *Registry) AttachCancel(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; ok {
		r.cancels[id] = cancel
	}
}

// Get returns a copy of an active record. Finished transfers are only
// reachable through History.
func (r *Registry) Get(id uuid.UUID) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// UpdateProgress records payload bytes moved for an active transfer.
func (r *Registry) UpdateProgress(id uuid.UUID, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.active[id]; ok {
		rec.BytesTransferred = bytes
	}
}

// Complete marks an active transfer finished and moves it to history,
// stamping checksum, verification and throughput.
func (r *Registry) Complete(id uuid.UUID, checksum string, verified bool) bool {
	return r.finish(id, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.FileChecksum = checksum
		rec.Verified = verified
		rec.BytesTransferred = rec.FileSize
		secs := rec.DurationSeconds
		if secs < 1 {
			secs = 1
		}
		rec.SpeedBytesPerSec = rec.FileSize / secs
	})
}

// Fail marks an active transfer failed and moves it to history.
func (r *Registry) Fail(id uuid.UUID) bool {
	return r.finish(id, func(rec *Record) {
		rec.Status = StatusFailed
	})
}

// Cancel marks an active transfer cancelled, invoking the attached cancel
// function (when one is registered) so the running sender stops.
func (r *Registry) Cancel(id uuid.UUID) bool {
	return r.finish(id, func(rec *Record) {
		rec.Status = StatusCancelled
	})
}

// Pause flags an active transfer paused in place.
func (r *Registry) Pause(id uuid.UUID) bool {
	return r.setStatus(id, StatusPaused)
}

// Resume flags a paused transfer in-progress again.
func (r *Registry) Resume(id uuid.UUID) bool {
	return r.setStatus(id, StatusInProgress)
}

// History returns copies of active and completed records, newest first.
func (r *Registry) History() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.active)+len(r.completed))
	for _, rec := range r.active {
		out = append(out, *rec)
	}
	for _, rec := range r.completed {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) setStatus(id uuid.UUID, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[id]
	if !ok {
		return false
	}
	rec.Status = status
	return true
}

func (r *Registry) finish(id uuid.UUID, mutate func(*Record)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.active[id]
	if !ok {
		return false
	}
	delete(r.active, id)
	if cancel, ok := r.cancels[id]; ok {
		delete(r.cancels, id)
		cancel()
	}

	now := r.clock.Now()
	rec.EndedAt = &now
	rec.DurationSeconds = int64(now.Sub(rec.CreatedAt).Seconds())
	mutate(rec)

	r.completed = append(r.completed, rec)
	if len(r.completed) > r.maxHistory {
		copy(r.completed, r.completed[1:])
		r.completed[len(r.completed)-1] = nil
		r.completed = r.completed[:r.maxHistory]
	}
	return true
}
