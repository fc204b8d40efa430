package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
	"github.com/landrop/landrop/internal/utils"
)

var statsCmd = &cobra.Command{
	Use:   "stats <transfer-id>",
	Short: "Show live stats for an active transfer",
	Long: `Show progress, speed, and ETA for a transfer that is still running.
Transfer ids appear in 'landrop history' and in the send output.

Examples:
  landrop stats 6fa3c9d2-8f41-4f11-b2d3-6d1a86f1a001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStats(args[0])
	},
}

func showStats(arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid transfer id %q: %w", arg, err)
	}

	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetTransferStats, TransferID: id})
	msg, err := client.Await(replyTimeout, protocol.TypeTransferStats)
	if err != nil {
		return err
	}

	var percent float64
	if msg.Total > 0 {
		percent = float64(msg.Progress) / float64(msg.Total) * 100
	}

	fmt.Println()
	ui.PrintInfof("Transfer %s", msg.TransferID)
	fmt.Printf("  Status:   %s\n", msg.Status)
	fmt.Printf("  Progress: %s / %s (%.1f%%)\n", utils.FormatSize(msg.Progress), utils.FormatSize(msg.Total), percent)
	if msg.SpeedBytesPerSec > 0 {
		fmt.Printf("  Speed:    %s\n", utils.FormatSpeed(float64(msg.SpeedBytesPerSec)))
	}
	if msg.EtaSeconds != nil {
		fmt.Printf("  ETA:      %s\n", utils.FormatTimeDuration(time.Duration(*msg.EtaSeconds)*time.Second))
	}
	if msg.StartTime != nil {
		fmt.Printf("  Started:  %s\n", msg.StartTime.Format(time.RFC3339))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)

	addClientFlags(statsCmd)
}
