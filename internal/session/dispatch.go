package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/landrop/landrop/internal/files"
	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/transfer"
)

// progressInterval throttles FileTransferProgress pushes per transfer. The
// final update always goes out.
const progressInterval = 500 * time.Millisecond

// dispatch handles one client command. Hub loop only; anything slow is
// spawned onto its own goroutine.
func (h *Hub) dispatch(c *Client, msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeGetPeers:
		peers := h.table.List()
		infos := make([]protocol.PeerInfo, 0, len(peers))
		for _, p := range peers {
			infos = append(infos, protocol.PeerInfoFrom(p))
		}
		h.deliver(c, &protocol.ServerMessage{Type: protocol.TypePeersList, Peers: infos})

	case protocol.TypeGetLocalInfo:
		id := h.table.LocalID()
		h.deliver(c, &protocol.ServerMessage{
			Type:     protocol.TypeLocalInfo,
			PeerID:   &id,
			Hostname: h.table.LocalHostname(),
		})

	case protocol.TypePing:
		h.deliver(c, &protocol.ServerMessage{Type: protocol.TypePong})

	case protocol.TypeSendFile:
		h.handleSendFile(c, msg)

	case protocol.TypeBroadcastFile:
		h.handleBroadcastFile(c, msg)

	case protocol.TypeSendChat:
		h.handleSendChat(c, msg)

	case protocol.TypeGetTransferHistory:
		h.deliver(c, &protocol.ServerMessage{
			Type:      protocol.TypeTransferHistory,
			Transfers: h.reg.History(),
		})

	case protocol.TypeGetTransferStats:
		h.handleTransferStats(c, msg)

	case protocol.TypeCancelTransfer:
		h.reg.Cancel(msg.TransferID)
		h.deliver(c, &protocol.ServerMessage{Type: protocol.TypeTransferCancelled, TransferID: msg.TransferID})

	case protocol.TypePauseTransfer:
		h.reg.Pause(msg.TransferID)
		h.deliver(c, &protocol.ServerMessage{Type: protocol.TypeTransferPaused, TransferID: msg.TransferID})

	case protocol.TypeResumeTransfer:
		h.reg.Resume(msg.TransferID)
		h.deliver(c, &protocol.ServerMessage{Type: protocol.TypeTransferResumed, TransferID: msg.TransferID})

	case protocol.TypeSendDirectory:
		h.deliver(c, protocol.ErrorMessage("Directory transfer not yet implemented. Please archive the directory first."))

	case protocol.TypeBroadcastDirectory:
		h.deliver(c, protocol.ErrorMessage("Directory broadcast not yet implemented. Please archive the directory first."))

	default:
		h.deliver(c, protocol.ErrorMessage("Unknown message type: "+msg.Type))
	}
}

func (h *Hub) handleSendFile(c *Client, msg *protocol.ClientMessage) {
	if msg.PeerID == nil {
		h.deliver(c, protocol.ErrorMessage("Peer not found"))
		return
	}
	target, ok := h.table.Get(*msg.PeerID)
	if !ok {
		h.deliver(c, protocol.ErrorMessage("Peer not found"))
		return
	}

	// Validation comes before the registry touch; a bad path must not
	// leave a record behind.
	info, err := files.ValidateFile(msg.FilePath)
	if err != nil {
		h.deliver(c, protocol.ErrorMessage(err.Error()))
		return
	}

	transferID := uuid.New()
	if err := h.reg.Start(registry.Record{
		TransferID: transferID,
		PeerID:     &target.ID,
		Hostname:   target.Hostname,
		Filename:   info.Name,
		FilePath:   info.Path,
		FileSize:   info.Size,
		Direction:  registry.DirectionSent,
	}); err != nil {
		h.deliver(c, protocol.ErrorMessage(err.Error()))
		return
	}

	h.deliver(c, &protocol.ServerMessage{
		Type:       protocol.TypeFileTransferRequest,
		TransferID: transferID,
		PeerID:     &target.ID,
		Filename:   info.Name,
		FilePath:   info.Path,
		FileSize:   info.Size,
		MimeType:   info.Type,
	})

	ctx, cancel := context.WithCancel(h.ctx)
	h.reg.AttachCancel(transferID, cancel)
	go h.runSend(ctx, cancel, c.id, target, transferID, info)
}

// runSend drives one outbound transfer and reports its lifecycle to the
// initiating session. It deliberately outlives that session; a client that
// disconnects mid-send just stops hearing about it.
func (h *Hub) runSend(ctx context.Context, cancel context.CancelFunc, clientID uuid.UUID, target peer.Peer, transferID uuid.UUID, info files.FileInfo) {
	defer cancel()

	res, err := h.engine.SendFile(ctx, transfer.SendRequest{
		TransferID: transferID,
		Addr:       target.Address,
		FilePath:   info.Path,
		Progress:   h.progressFunc(clientID, transferID),
	})
	if err != nil {
		if errors.Is(err, transfer.ErrTransferCancelled) {
			h.log.Info("send cancelled", "transfer_id", transferID, "peer_id", target.ID)
			return
		}
		h.reg.Fail(transferID)
		h.push(clientID, &protocol.ServerMessage{
			Type:       protocol.TypeFileTransferError,
			TransferID: transferID,
			PeerID:     &target.ID,
			Message:    err.Error(),
		})
		return
	}

	h.reg.Complete(transferID, res.Checksum, true)
	h.push(clientID, &protocol.ServerMessage{
		Type:       protocol.TypeFileTransferComplete,
		TransferID: transferID,
		PeerID:     &target.ID,
	})
}

// progressFunc feeds the registry on every chunk and pushes a throttled
// FileTransferProgress stream to the initiating session.
func (h *Hub) progressFunc(clientID, transferID uuid.UUID) func(sent, total int64) {
	var lastPush time.Time
	return func(sent, total int64) {
		h.reg.UpdateProgress(transferID, sent)

		now := h.clock.Now()
		if sent != total && now.Sub(lastPush) < progressInterval {
			return
		}
		lastPush = now
		h.push(clientID, &protocol.ServerMessage{
			Type:       protocol.TypeFileTransferProgress,
			TransferID: transferID,
			Progress:   sent,
			Total:      total,
		})
	}
}

func (h *Hub) handleBroadcastFile(c *Client, msg *protocol.ClientMessage) {
	info, err := files.ValidateFile(msg.FilePath)
	if err != nil {
		h.deliver(c, protocol.ErrorMessage(err.Error()))
		return
	}

	targets := h.table.List()
	if len(targets) == 0 {
		h.deliver(c, protocol.ErrorMessage("No peers available for broadcast"))
		return
	}

	broadcastID := uuid.New()
	h.deliver(c, &protocol.ServerMessage{
		Type:       protocol.TypeBroadcastTransferStart,
		TransferID: broadcastID,
		Filename:   info.Name,
		FilePath:   info.Path,
		FileSize:   info.Size,
		MimeType:   info.Type,
		TotalPeers: len(targets),
	})

	go h.runBroadcast(h.ctx, c.id, broadcastID, info, targets)
}

// runBroadcast fans one file out to every known peer, one at a time. A slow
// or dead peer costs its own slot in the sequence, nothing more.
func (h *Hub) runBroadcast(ctx context.Context, clientID, broadcastID uuid.UUID, info files.FileInfo, targets []peer.Peer) {
	var successful, failed int

	for i, target := range targets {
		transferID := uuid.New()
		startErr := h.reg.Start(registry.Record{
			TransferID: transferID,
			PeerID:     &target.ID,
			Hostname:   target.Hostname,
			Filename:   info.Name,
			FilePath:   info.Path,
			FileSize:   info.Size,
			Direction:  registry.DirectionSent,
		})

		var sendErr error
		if startErr != nil {
			sendErr = startErr
		} else {
			var res *transfer.SendResult
			res, sendErr = h.engine.SendFile(ctx, transfer.SendRequest{
				TransferID: transferID,
				Addr:       target.Address,
				FilePath:   info.Path,
			})
			if sendErr == nil {
				h.reg.Complete(transferID, res.Checksum, true)
			} else {
				h.reg.Fail(transferID)
			}
		}

		if sendErr != nil {
			failed++
			h.push(clientID, &protocol.ServerMessage{
				Type:       protocol.TypeFileTransferError,
				TransferID: broadcastID,
				PeerID:     &target.ID,
				Message:    sendErr.Error(),
			})
		} else {
			successful++
		}

		h.push(clientID, &protocol.ServerMessage{
			Type:           protocol.TypeBroadcastTransferProgress,
			TransferID:     broadcastID,
			CompletedPeers: i + 1,
			TotalPeers:     len(targets),
		})
	}

	h.push(clientID, &protocol.ServerMessage{
		Type:            protocol.TypeBroadcastTransferComplete,
		TransferID:      broadcastID,
		SuccessfulPeers: successful,
		FailedPeers:     failed,
	})
}

func (h *Hub) handleSendChat(c *Client, msg *protocol.ClientMessage) {
	chat := &protocol.ServerMessage{
		Type:         protocol.TypeChatMessage,
		FromPeerID:   h.table.LocalID(),
		FromHostname: h.table.LocalHostname(),
		ToPeerID:     msg.PeerID,
		Message:      msg.Message,
		Timestamp:    h.clock.Now().Unix(),
	}

	// Sessions are bound to the local peer, so a chat addressed to some
	// other peer only echoes back to its sender here.
	if msg.PeerID != nil && *msg.PeerID != h.table.LocalID() {
		h.deliver(c, chat)
		return
	}
	h.deliverAll(chat)
}

func (h *Hub) handleTransferStats(c *Client, msg *protocol.ClientMessage) {
	rec, ok := h.reg.Get(msg.TransferID)
	if !ok {
		h.deliver(c, protocol.ErrorMessage("Transfer not found"))
		return
	}

	var speed int64
	if elapsed := int64(h.clock.Now().Sub(rec.CreatedAt).Seconds()); elapsed > 0 {
		speed = rec.BytesTransferred / elapsed
	}
	var eta *int64
	if speed > 0 && rec.FileSize > rec.BytesTransferred {
		remaining := (rec.FileSize - rec.BytesTransferred) / speed
		eta = &remaining
	}

	h.deliver(c, &protocol.ServerMessage{
		Type:             protocol.TypeTransferStats,
		TransferID:       rec.TransferID,
		Status:           rec.Status,
		Progress:         rec.BytesTransferred,
		Total:            rec.FileSize,
		SpeedBytesPerSec: speed,
		EtaSeconds:       eta,
		StartTime:        &rec.CreatedAt,
	})
}
