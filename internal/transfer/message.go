package transfer

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
)

// Wire message types. Every frame is one newline-terminated JSON object;
// chunk payloads ride as base64 strings, so frames never contain a raw
// newline.
const (
	TypeRequest  = "request"
	TypeAccept   = "accept"
	TypeReject   = "reject"
	TypeChunk    = "chunk"
	TypeComplete = "complete"
	TypeCancel   = "cancel"
	TypePause    = "pause"
	TypeResume   = "resume"
	TypeError    = "error"
)

// Message is a single frame of the transfer protocol. Fields beyond Type and
// TransferID are populated per message type.
type Message struct {
	Type       string    `json:"type"`
	TransferID uuid.UUID `json:"transfer_id"`

	// request
	Filename     string `json:"filename,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	FileChecksum string `json:"file_checksum,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`

	// reject
	Reason string `json:"reason,omitempty"`

	// chunk
	ChunkIndex uint64 `json:"chunk_index,omitempty"`
	Data       []byte `json:"data,omitempty"`

	// cancel / error
	Text string `json:"message,omitempty"`
}

// wire frames Messages over a TCP connection, one JSON object per line in
// each direction. Read and write deadlines are armed per call.
type wire struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func newWire(conn net.Conn) *wire {
	return &wire{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}
}

func (w *wire) write(timeout time.Duration, msg *Message) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return w.enc.Encode(msg)
}

func (w *wire) read(timeout time.Duration) (*Message, error) {
	if err := w.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var msg Message
	if err := w.dec.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
