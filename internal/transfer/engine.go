// Package transfer implements the TCP file-transfer protocol: a newline-JSON
// handshake followed by ordered chunks, with SHA-256 verification and a
// shared permit pool bounding concurrent work.
package transfer

import (
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/landrop/landrop/internal/registry"
)

const (
	// DefaultChunkSize is the outgoing chunk payload size.
	DefaultChunkSize = 64 * 1024

	// DefaultMaxConcurrent is the size of the shared permit pool.
	DefaultMaxConcurrent = 5

	// DefaultDownloadDir is where inbound files land.
	DefaultDownloadDir = "downloads"

	dialTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second // first frame in, handshake response out
	streamTimeout  = 60 * time.Second // inactivity between stream frames
	writeTimeout   = 60 * time.Second
	cancelTimeout  = 5 * time.Second // best-effort cancel frame
)

// Recorder is the slice of the transfer registry the receive path needs.
type Recorder interface {
	Start(rec registry.Record) error
	UpdateProgress(id uuid.UUID, bytes int64)
	Complete(id uuid.UUID, checksum string, verified bool) bool
	Cancel(id uuid.UUID) bool
	Fail(id uuid.UUID) bool
}

// Options configures an Engine.
type Options struct {
	// DownloadDir is the destination directory for inbound files.
	DownloadDir string

	// ChunkSize is the outgoing chunk payload size in bytes.
	ChunkSize int

	// MaxConcurrent caps simultaneous transfers; senders and receivers
	// draw from the same pool.
	MaxConcurrent int

	// Registry records inbound transfers.
	Registry Recorder

	Logger *slog.Logger
}

// Engine owns the transfer permit pool and the receiver listener loop. It
// keeps no per-transfer state of its own; records live in the registry.
type Engine struct {
	downloadDir string
	chunkSize   int
	sem         *semaphore.Weighted
	reg         Recorder
	log         *slog.Logger
}

// New creates an Engine, substituting defaults for unset options.
func New(opts Options) *Engine {
	if opts.DownloadDir == "" {
		opts.DownloadDir = DefaultDownloadDir
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		downloadDir: opts.DownloadDir,
		chunkSize:   opts.ChunkSize,
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		reg:         opts.Registry,
		log:         opts.Logger.With("component", "transfer"),
	}
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
