package cmd

import (
	"errors"
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

var sendCmd = &cobra.Command{
	Use:     "send <peer> <file>",
	Aliases: []string{"s"},
	Short:   "Send a file to a peer",
	Long: `Send a file to a peer on the local network.

The peer can be named by hostname, full peer id, or a unique id prefix.

Examples:
  landrop send alices-laptop report.pdf
  landrop send 3f2a video.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFile(args[0], args[1])
	},
}

func sendFile(peerArg, path string) error {
	// The daemon resolves paths against its own working directory, so the
	// client hands it an absolute one.
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	target, err := resolvePeer(client, peerArg)
	if err != nil {
		return err
	}

	client.Send(&protocol.ClientMessage{
		Type:     protocol.TypeSendFile,
		PeerID:   &target.ID,
		FilePath: absPath,
	})
	req, err := client.Await(replyTimeout, protocol.TypeFileTransferRequest)
	if err != nil {
		return err
	}

	fmt.Println()
	ui.RenderFileTable([]ui.FileTableItem{
		{Index: 1, Name: req.Filename, Size: req.FileSize, Type: req.MimeType},
	})
	fmt.Println()

	live := ui.NewTransferUI(ui.ModeSend, []string{req.Filename}, req.FileSize)
	live.SetState(fmt.Sprintf("Sending to %s...", target.Hostname))
	live.Start()

	start := time.Now()
	err = watchSend(client, live, req.TransferID)
	live.Stop()
	if err != nil {
		return err
	}

	duration := time.Since(start)
	seconds := duration.Seconds()
	if seconds < 1 {
		seconds = 1
	}

	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:   fmt.Sprintf("%s Complete", ui.IconSuccess),
		Peers:    1,
		Size:     utils.FormatSize(req.FileSize),
		Duration: utils.FormatTimeDuration(duration),
		Speed:    utils.FormatSpeed(float64(req.FileSize) / seconds),
	})
	return nil
}

// watchSend follows one transfer through the notification stream until it
// completes or fails.
func watchSend(client *wsclient.Client, live *ui.TransferUI, transferID uuid.UUID) error {
	for msg := range client.Incoming() {
		if msg.TransferID != transferID {
			continue
		}

		switch msg.Type {
		case protocol.TypeFileTransferProgress:
			live.UpdateProgress(0, msg.Progress)

		case protocol.TypeFileTransferComplete:
			live.MarkComplete(0)
			return nil

		case protocol.TypeFileTransferError:
			live.MarkFailed(0, msg.Message)
			return errors.New(msg.Message)
		}
	}
	return wsclient.ErrClosed
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addClientFlags(sendCmd)
}
