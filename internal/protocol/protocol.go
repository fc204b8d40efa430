// Package protocol defines the control-plane messages exchanged with UI
// clients over the WebSocket session. Every message is a JSON object tagged
// by "type", with the payload fields inline.
package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/registry"
)

// Client-to-server message types.
const (
	TypeGetPeers           = "GetPeers"
	TypeSendFile           = "SendFile"
	TypeBroadcastFile      = "BroadcastFile"
	TypeGetLocalInfo       = "GetLocalInfo"
	TypeSendChat           = "SendChat"
	TypePing               = "Ping"
	TypeSendDirectory      = "SendDirectory"
	TypeBroadcastDirectory = "BroadcastDirectory"
	TypeGetTransferHistory = "GetTransferHistory"
	TypeGetTransferStats   = "GetTransferStats"
	TypeCancelTransfer     = "CancelTransfer"
	TypePauseTransfer      = "PauseTransfer"
	TypeResumeTransfer     = "ResumeTransfer"
)

// Server-to-client message types.
const (
	TypePeersList                 = "PeersList"
	TypeLocalInfo                 = "LocalInfo"
	TypePeerDiscovered            = "PeerDiscovered"
	TypePeerRemoved               = "PeerRemoved"
	TypeFileTransferRequest       = "FileTransferRequest"
	TypeFileTransferProgress      = "FileTransferProgress"
	TypeFileTransferComplete      = "FileTransferComplete"
	TypeFileTransferError         = "FileTransferError"
	TypeBroadcastTransferStart    = "BroadcastTransferStart"
	TypeBroadcastTransferProgress = "BroadcastTransferProgress"
	TypeBroadcastTransferComplete = "BroadcastTransferComplete"
	TypeChatMessage               = "ChatMessage"
	TypePong                      = "Pong"
	TypeError                     = "Error"
	TypeTransferHistory           = "TransferHistory"
	TypeTransferStats             = "TransferStats"
	TypeTransferCancelled         = "TransferCancelled"
	TypeTransferPaused            = "TransferPaused"
	TypeTransferResumed           = "TransferResumed"
)

// PeerInfo is the client-facing view of a discovered peer.
type PeerInfo struct {
	ID       uuid.UUID `json:"id"`
	Address  string    `json:"address"`
	Hostname string    `json:"hostname"`
}

// PeerInfoFrom converts a peer table entry to its wire form.
func PeerInfoFrom(p peer.Peer) PeerInfo {
	return PeerInfo{ID: p.ID, Address: p.Address, Hostname: p.Hostname}
}

// ClientMessage is one request from a UI client. Fields beyond Type are
// populated per message type.
type ClientMessage struct {
	Type string `json:"type"`

	// SendFile, SendDirectory; also the target of a direct SendChat.
	PeerID *uuid.UUID `json:"peer_id,omitempty"`

	// SendFile, BroadcastFile
	FilePath string `json:"file_path,omitempty"`

	// SendDirectory, BroadcastDirectory
	DirPath string `json:"dir_path,omitempty"`

	// SendChat
	Message string `json:"message,omitempty"`

	// GetTransferStats, CancelTransfer, PauseTransfer, ResumeTransfer
	TransferID uuid.UUID `json:"transfer_id,omitzero"`
}

// ServerMessage is one reply or push notification to a UI client. Fields
// beyond Type are populated per message type.
type ServerMessage struct {
	Type string `json:"type"`

	// PeersList
	Peers []PeerInfo `json:"peers,omitempty"`

	// PeerDiscovered
	Peer *PeerInfo `json:"peer,omitempty"`

	// LocalInfo and PeerRemoved always carry it; FileTransferComplete and
	// FileTransferError carry it when the counterparty is known.
	PeerID   *uuid.UUID `json:"peer_id,omitempty"`
	Hostname string     `json:"hostname,omitempty"`

	// Transfer lifecycle
	TransferID   uuid.UUID `json:"transfer_id,omitzero"`
	Filename     string    `json:"filename,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	FileChecksum string    `json:"file_checksum,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`

	// FileTransferProgress
	Progress int64 `json:"progress,omitempty"`
	Total    int64 `json:"total,omitempty"`

	// Broadcast fan-out
	TotalPeers      int `json:"total_peers,omitempty"`
	CompletedPeers  int `json:"completed_peers,omitempty"`
	SuccessfulPeers int `json:"successful_peers,omitempty"`
	FailedPeers     int `json:"failed_peers,omitempty"`

	// ChatMessage
	FromPeerID   uuid.UUID  `json:"from_peer_id,omitzero"`
	FromHostname string     `json:"from_hostname,omitempty"`
	ToPeerID     *uuid.UUID `json:"to_peer_id,omitempty"`
	Timestamp    int64      `json:"timestamp,omitempty"`

	// ChatMessage body, FileTransferError and Error detail.
	Message string `json:"message,omitempty"`

	// TransferHistory
	Transfers []registry.Record `json:"transfers,omitempty"`

	// TransferStats
	Status           registry.Status `json:"status,omitempty"`
	SpeedBytesPerSec int64           `json:"speed_bytes_per_sec,omitempty"`
	EtaSeconds       *int64          `json:"eta_seconds,omitempty"`
	StartTime        *time.Time      `json:"start_time,omitempty"`
}

// ErrorMessage builds the generic failure reply.
func ErrorMessage(text string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Message: text}
}
