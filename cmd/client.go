package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
	"github.com/landrop/landrop/internal/wsclient"
)

// replyTimeout is how long client commands wait for a synchronous answer.
const replyTimeout = 10 * time.Second

var flagAddr string

// addClientFlags registers the flags every daemon-client subcommand shares.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Daemon WebSocket URL (default ws://localhost:<web_port>/ws)")
}

// daemonURL resolves the daemon address: the --addr flag wins, then the
// web_port from an existing config file, then the built-in default.
func daemonURL() string {
	if flagAddr != "" {
		return flagAddr
	}

	port := config.Default().Network.WebPort
	if _, err := os.Stat(config.DefaultPath); err == nil {
		if cfg, err := config.Load(config.DefaultPath); err == nil {
			port = cfg.Network.WebPort
		}
	}
	return fmt.Sprintf("ws://localhost:%d/ws", port)
}

// connectDaemon dials the daemon and returns a connected client.
func connectDaemon() (*wsclient.Client, error) {
	stopSpinner := ui.RunConnectionSpinner("Connecting to daemon...")
	defer stopSpinner()

	client := wsclient.NewClient(daemonURL())
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// resolvePeer matches arg against the daemon's peer list by id, id prefix,
// or hostname.
func resolvePeer(client *wsclient.Client, arg string) (*protocol.PeerInfo, error) {
	client.Send(&protocol.ClientMessage{Type: protocol.TypeGetPeers})
	msg, err := client.Await(replyTimeout, protocol.TypePeersList)
	if err != nil {
		return nil, err
	}

	var matches []protocol.PeerInfo
	for _, p := range msg.Peers {
		if p.ID.String() == strings.ToLower(arg) {
			return &p, nil
		}
		if strings.HasPrefix(p.ID.String(), strings.ToLower(arg)) || strings.EqualFold(p.Hostname, arg) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no peer matches %q (run 'landrop peers' to list them)", arg)
	case 1:
		return &matches[0], nil
	default:
		var names []string
		for _, p := range matches {
			names = append(names, fmt.Sprintf("%s (%s)", p.Hostname, p.ID))
		}
		return nil, fmt.Errorf("%q is ambiguous, matches: %s", arg, strings.Join(names, ", "))
	}
}
