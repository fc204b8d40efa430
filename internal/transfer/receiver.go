package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/utils"
)

// Serve accepts inbound transfer connections on ln until ctx is cancelled.
// Each connection is handled on its own goroutine; the shared permit pool
// decides how many of them make progress at once.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	e.log.Info("transfer listener started", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewError("accept", err)
		}
		go e.receive(ctx, conn)
	}
}

// receive runs the receiver state machine for one inbound connection,
// blocking on the permit pool first so senders that reach a busy node
// wait instead of failing.
func (e *Engine) receive(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.sem.Release(1)

	if err := e.receiveFile(conn); err != nil {
		e.log.Warn("inbound transfer failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

func (e *Engine) receiveFile(conn net.Conn) error {
	w := newWire(conn)

	req, err := w.read(requestTimeout)
	if err != nil {
		return NewError("read request", err)
	}
	if req.Type != TypeRequest {
		return WrapError("handshake", ErrUnexpectedMessage, req.Type)
	}

	// Only the base name is honored; a request naming a path cannot
	// write outside the download directory.
	name := filepath.Base(req.Filename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		e.reject(w, req.TransferID, "invalid filename")
		return WrapError("handshake", ErrInvalidFilename, req.Filename)
	}

	if err := os.MkdirAll(e.downloadDir, 0o755); err != nil {
		e.reject(w, req.TransferID, "cannot create download directory")
		return NewFileError("mkdir", e.downloadDir, err)
	}

	path := utils.GetUniqueFilename(filepath.Join(e.downloadDir, name))
	f, err := os.Create(path)
	if err != nil {
		e.reject(w, req.TransferID, "cannot open destination file")
		return NewFileError("create", path, err)
	}

	rec := registry.Record{
		TransferID: req.TransferID,
		Hostname:   remoteHost(conn),
		Filename:   filepath.Base(path),
		FilePath:   path,
		FileSize:   req.FileSize,
		Direction:  registry.DirectionReceived,
	}
	if err := e.reg.Start(rec); err != nil {
		f.Close()
		os.Remove(path)
		e.reject(w, req.TransferID, "duplicate transfer id")
		return WrapError("register", ErrDuplicateID, req.TransferID.String())
	}

	if err := w.write(writeTimeout, &Message{Type: TypeAccept, TransferID: req.TransferID}); err != nil {
		e.abortReceive(f, path, req.TransferID)
		return NewError("accept", err)
	}

	e.log.Info("receiving file",
		"transfer_id", req.TransferID,
		"filename", name,
		"size", req.FileSize,
		"from", conn.RemoteAddr().String())

	hasher := sha256.New()
	var received int64
	var expected uint64

	for {
		msg, err := w.read(streamTimeout)
		if err != nil {
			e.abortReceive(f, path, req.TransferID)
			return NewError("read stream", err)
		}

		switch msg.Type {
		case TypeChunk:
			// Strict ordering: a chunk with a stale id or an index
			// other than the next expected one is dropped without
			// advancing the stream.
			if msg.TransferID != req.TransferID || msg.ChunkIndex != expected {
				continue
			}
			if _, err := f.Write(msg.Data); err != nil {
				e.abortReceive(f, path, req.TransferID)
				return NewFileError("write", path, err)
			}
			hasher.Write(msg.Data)
			received += int64(len(msg.Data))
			expected++
			e.reg.UpdateProgress(req.TransferID, received)

		case TypeComplete:
			if msg.TransferID != req.TransferID {
				continue
			}
			advertised := req.FileChecksum
			if advertised == "" {
				advertised = msg.FileChecksum
			}
			return e.finalizeReceive(f, path, req.TransferID, advertised, hasher, received)

		case TypeCancel:
			if msg.TransferID != req.TransferID {
				continue
			}
			f.Close()
			os.Remove(path)
			e.reg.Cancel(req.TransferID)
			e.log.Info("inbound transfer cancelled by sender", "transfer_id", req.TransferID)
			return nil

		case TypePause, TypeResume:
			// Accepted but not acted on; the byte stream keeps its
			// own pace.

		case TypeError:
			e.abortReceive(f, path, req.TransferID)
			return WrapError("stream", ErrRemoteError, msg.Text)

		default:
			e.abortReceive(f, path, req.TransferID)
			return WrapError("stream", ErrUnexpectedMessage, msg.Type)
		}
	}
}

// finalizeReceive flushes the file, verifies it against the advertised
// checksum and moves the registry record to completed. A mismatched file
// is kept on disk; the record carries verified=false.
func (e *Engine) finalizeReceive(f *os.File, path string, id uuid.UUID, advertised string, hasher hash.Hash, received int64) error {
	if err := f.Sync(); err != nil {
		e.abortReceive(f, path, id)
		return NewFileError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		e.reg.Fail(id)
		return NewFileError("close", path, err)
	}

	calculated := hex.EncodeToString(hasher.Sum(nil))
	verified := true
	if advertised != "" {
		verified = calculated == advertised
	}
	if !verified {
		e.log.Warn("checksum mismatch on received file",
			"transfer_id", id,
			"file", path,
			"calculated", calculated,
			"advertised", advertised)
	}

	e.reg.Complete(id, calculated, verified)
	e.log.Info("file received",
		"transfer_id", id,
		"file", path,
		"bytes", received,
		"verified", verified)
	return nil
}

func (e *Engine) reject(w *wire, id uuid.UUID, reason string) {
	_ = w.write(writeTimeout, &Message{Type: TypeReject, TransferID: id, Reason: reason})
}

func (e *Engine) abortReceive(f *os.File, path string, id uuid.UUID) {
	f.Close()
	os.Remove(path)
	e.reg.Fail(id)
}
