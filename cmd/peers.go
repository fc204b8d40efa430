package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
)

var peersCmd = &cobra.Command{
	Use:     "peers",
	Aliases: []string{"p"},
	Short:   "List peers discovered on the network",
	Long: `List the peers the daemon currently sees on the local network.

Examples:
  landrop peers
  landrop peers --addr ws://192.168.1.10:3030/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPeers()
	},
}

func listPeers() error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetLocalInfo})
	local, err := client.Await(replyTimeout, protocol.TypeLocalInfo)
	if err != nil {
		return err
	}

	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetPeers})
	msg, err := client.Await(replyTimeout, protocol.TypePeersList)
	if err != nil {
		return err
	}

	fmt.Println()
	ui.PrintInfof("This machine: %s (%s)", local.Hostname, local.PeerID)
	fmt.Println()

	items := make([]ui.PeerTableItem, len(msg.Peers))
	for i, p := range msg.Peers {
		items[i] = ui.PeerTableItem{
			Index:    i + 1,
			ID:       p.ID.String(),
			Hostname: p.Hostname,
			Address:  p.Address,
		}
	}
	ui.RenderPeerTable(items)
	return nil
}

func init() {
	rootCmd.AddCommand(peersCmd)

	addClientFlags(peersCmd)
}
