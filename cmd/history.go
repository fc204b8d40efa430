package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Show past transfers",
	Long: `Show the daemon's transfer history, newest first.

Examples:
  landrop history
  landrop history --limit 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory(flagHistoryLimit)
	},
}

func showHistory(limit int) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetTransferHistory})
	msg, err := client.Await(replyTimeout, protocol.TypeTransferHistory)
	if err != nil {
		return err
	}

	records := msg.Transfers
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	fmt.Println()
	ui.RenderHistoryTable(records)
	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)

	addClientFlags(historyCmd)
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 0, "Show at most this many transfers (0 = all)")
}
