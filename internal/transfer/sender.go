package transfer

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/landrop/landrop/internal/files"
)

// SendRequest describes one outbound file send.
type SendRequest struct {
	// TransferID identifies the transfer on the wire; a zero value gets
	// a fresh id.
	TransferID uuid.UUID

	// Addr is the receiver's transfer listener, host:port.
	Addr string

	// FilePath is the local file to stream.
	FilePath string

	// Progress, when set, is invoked after every chunk with the
	// cumulative payload bytes written so far.
	Progress func(sent, total int64)
}

// SendResult reports a finished send.
type SendResult struct {
	TransferID uuid.UUID
	Filename   string
	FileSize   int64
	Checksum   string
	BytesSent  int64
}

// SendFile streams one file to a peer's transfer listener: request, wait for
// accept, chunks in order, then a closing frame carrying the checksum. It
// blocks on the shared permit pool before doing any I/O and returns once the
// closing frame is written; the protocol has no acknowledgement after it.
func (e *Engine) SendFile(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, NewError("acquire permit", err)
	}
	defer e.sem.Release(1)

	info, err := files.ValidateFile(req.FilePath)
	if err != nil {
		return nil, err
	}

	// The checksum is computed up front so the receiver can verify
	// against the value the request advertised.
	checksum, err := FileChecksum(info.Path)
	if err != nil {
		return nil, NewFileError("checksum", info.Path, err)
	}

	id := req.TransferID
	if id == uuid.Nil {
		id = uuid.New()
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", req.Addr)
	if err != nil {
		return nil, NewError("connect", err)
	}
	defer conn.Close()

	w := newWire(conn)
	if err := w.write(writeTimeout, &Message{
		Type:         TypeRequest,
		TransferID:   id,
		Filename:     info.Name,
		FilePath:     info.Path,
		FileSize:     info.Size,
		FileChecksum: checksum,
		MimeType:     info.Type,
	}); err != nil {
		return nil, NewError("send request", err)
	}

	resp, err := w.read(requestTimeout)
	if err != nil {
		return nil, NewError("await response", err)
	}
	switch resp.Type {
	case TypeAccept:
	case TypeReject:
		return nil, WrapError("handshake", ErrTransferRejected, resp.Reason)
	default:
		return nil, WrapError("handshake", ErrUnexpectedMessage, resp.Type)
	}

	f, err := os.Open(info.Path)
	if err != nil {
		return nil, NewFileError("open", info.Path, err)
	}
	defer f.Close()

	e.log.Info("sending file",
		"transfer_id", id,
		"filename", info.Name,
		"size", info.Size,
		"to", req.Addr)

	buf := make([]byte, e.chunkSize)
	var index uint64
	var sent int64
	for {
		if ctx.Err() != nil {
			// Best effort: tell the receiver so it can drop the
			// partial file instead of waiting out its timeout.
			_ = w.write(cancelTimeout, &Message{Type: TypeCancel, TransferID: id, Text: "cancelled by sender"})
			return nil, WrapError("stream", ErrTransferCancelled, info.Name)
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			if err := w.write(writeTimeout, &Message{
				Type:       TypeChunk,
				TransferID: id,
				ChunkIndex: index,
				Data:       buf[:n],
			}); err != nil {
				return nil, NewError("send chunk", err)
			}
			index++
			sent += int64(n)
			if req.Progress != nil {
				req.Progress(sent, info.Size)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, NewFileError("read", info.Path, readErr)
		}
	}

	if err := w.write(writeTimeout, &Message{
		Type:         TypeComplete,
		TransferID:   id,
		FileChecksum: checksum,
	}); err != nil {
		return nil, NewError("send complete", err)
	}

	e.log.Info("file sent", "transfer_id", id, "filename", info.Name, "bytes", sent)

	return &SendResult{
		TransferID: id,
		Filename:   info.Name,
		FileSize:   info.Size,
		Checksum:   checksum,
		BytesSent:  sent,
	}, nil
}
