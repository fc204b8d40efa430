package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/ui"
	"github.com/landrop/landrop/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "landrop",
	Short:   "Peer-to-peer file sharing for your local network",
	Long:    `LanDrop is a LAN file-sharing daemon with a command-line client. The daemon discovers peers over UDP broadcast and moves files between machines over direct TCP connections, no server or internet connection required. The client subcommands talk to a running daemon to list peers, send or broadcast files, chat, and inspect transfer history.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
