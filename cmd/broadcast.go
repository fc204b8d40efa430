package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
	"github.com/landrop/landrop/internal/utils"
	"github.com/landrop/landrop/internal/wsclient"
)

var broadcastCmd = &cobra.Command{
	Use:     "broadcast <file>",
	Aliases: []string{"b"},
	Short:   "Send a file to every peer on the network",
	Long: `Send a file to every peer the daemon currently sees, one peer at a
time. A peer that fails or refuses does not stop the rest.

Examples:
  landrop broadcast team-photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return broadcastFile(args[0])
	},
}

func broadcastFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	// The peer list gives the live view its row names. The daemon fans out
	// in the same hostname order.
	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetPeers})
	peersMsg, err := client.Await(replyTimeout, protocol.TypePeersList)
	if err != nil {
		return err
	}

	client.Send(&protocol.ClientMessage{
		Type:     protocol.TypeBroadcastFile,
		FilePath: absPath,
	})
	start, err := client.Await(replyTimeout, protocol.TypeBroadcastTransferStart)
	if err != nil {
		return err
	}

	names := make([]string, len(peersMsg.Peers))
	for i, p := range peersMsg.Peers {
		names[i] = p.Hostname
	}
	if start.TotalPeers != len(names) {
		// A peer came or went between the two snapshots; fall back to
		// anonymous rows rather than mislabel them.
		names = make([]string, start.TotalPeers)
		for i := range names {
			names[i] = fmt.Sprintf("peer %d", i+1)
		}
	}

	fmt.Println()
	ui.RenderFileTable([]ui.FileTableItem{
		{Index: 1, Name: start.Filename, Size: start.FileSize, Type: start.MimeType},
	})
	fmt.Println()

	live := ui.NewTransferUI(ui.ModeBroadcast, names, start.FileSize)
	live.SetState(fmt.Sprintf("Broadcasting to %d peers...", start.TotalPeers))
	live.Start()

	began := time.Now()
	result, err := watchBroadcast(client, live, start.TransferID, peersMsg.Peers)
	live.Stop()
	if err != nil {
		return err
	}

	duration := time.Since(began)
	seconds := duration.Seconds()
	if seconds < 1 {
		seconds = 1
	}
	totalBytes := start.FileSize * int64(result.SuccessfulPeers)

	status := fmt.Sprintf("%s Complete", ui.IconSuccess)
	if result.FailedPeers > 0 {
		status = fmt.Sprintf("%s %d of %d failed", ui.IconWarning, result.FailedPeers, start.TotalPeers)
	}

	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:   status,
		Peers:    start.TotalPeers,
		Size:     utils.FormatSize(totalBytes),
		Duration: utils.FormatTimeDuration(duration),
		Speed:    utils.FormatSpeed(float64(totalBytes) / seconds),
	})

	if result.FailedPeers > 0 {
		return fmt.Errorf("%d of %d transfers failed", result.FailedPeers, start.TotalPeers)
	}
	return nil
}

// watchBroadcast follows the fan-out through the notification stream until
// the daemon reports the final tally.
func watchBroadcast(client *wsclient.Client, live *ui.TransferUI, broadcastID uuid.UUID, peers []protocol.PeerInfo) (*protocol.ServerMessage, error) {
	rowOf := make(map[uuid.UUID]int, len(peers))
	for i, p := range peers {
		rowOf[p.ID] = i
	}

	for msg := range client.Incoming() {
		if msg.TransferID != broadcastID {
			continue
		}

		switch msg.Type {
		case protocol.TypeFileTransferError:
			if msg.PeerID != nil {
				if row, ok := rowOf[*msg.PeerID]; ok {
					live.MarkFailed(row, msg.Message)
				}
			}

		case protocol.TypeBroadcastTransferProgress:
			// Fan-out is sequential, so the n-th progress event closes
			// the n-th row. Failed rows keep their failure mark.
			live.MarkComplete(msg.CompletedPeers - 1)
			live.SetState(fmt.Sprintf("Completed %d of %d peers...", msg.CompletedPeers, msg.TotalPeers))

		case protocol.TypeBroadcastTransferComplete:
			return msg, nil
		}
	}
	return nil, wsclient.ErrClosed
}

func init() {
	rootCmd.AddCommand(broadcastCmd)

	addClientFlags(broadcastCmd)
}
