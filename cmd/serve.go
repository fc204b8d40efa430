package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/discovery"
	"github.com/landrop/landrop/internal/netutil"
	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/session"
	"github.com/landrop/landrop/internal/transfer"
	"github.com/landrop/landrop/internal/version"
)

var flagServeConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LanDrop daemon",
	Long: `Run the LanDrop daemon in the foreground.

The daemon announces itself over UDP broadcast, tracks other daemons on the
network, accepts incoming file transfers, and serves the WebSocket control
socket the client subcommands talk to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(flagServeConfig)
	},
}

func runServe(configPath string) error {
	// Execute installed an exit-on-interrupt handler for the client
	// subcommands; the daemon shuts down gracefully instead.
	signal.Reset(os.Interrupt)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	peerID := uuid.New()
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}

	clock := clockwork.NewRealClock()
	table := peer.NewTable(peerID, hostname, clock)
	reg := registry.New(registry.DefaultMaxHistory, clock)

	engine := transfer.New(transfer.Options{
		ChunkSize:     cfg.Transfer.ChunkSize,
		MaxConcurrent: cfg.Transfer.MaxConcurrent,
		Registry:      reg,
		Logger:        log,
	})

	hub := session.NewHub(session.Options{
		Table:    table,
		Registry: reg,
		Engine:   engine,
		Clock:    clock,
		Logger:   log,
	})

	localIP := netutil.LocalIPv4()
	transferAddr := net.JoinHostPort(localIP.String(), strconv.Itoa(cfg.Network.TransferPort))
	broadcastAddr := net.JoinHostPort(netutil.BroadcastIPv4(localIP).String(), strconv.Itoa(cfg.Network.DiscoveryPort))

	disc := discovery.New(discovery.Options{
		Table:            table,
		Notifier:         hub,
		TransferAddr:     transferAddr,
		BroadcastAddr:    broadcastAddr,
		AnnounceInterval: time.Duration(cfg.Network.BroadcastInterval) * time.Second,
		Clock:            clock,
		Logger:           log,
	})

	udpConn, err := netutil.ListenBroadcast(ctx, fmt.Sprintf("0.0.0.0:%d", cfg.Network.DiscoveryPort))
	if err != nil {
		return fmt.Errorf("bind discovery socket: %w", err)
	}

	tcpLn, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", cfg.Network.TransferPort))
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("bind transfer listener: %w", err)
	}

	web := session.NewServer(hub, fmt.Sprintf("0.0.0.0:%d", cfg.Network.WebPort), log)

	log.Info("landrop daemon starting",
		"version", version.Version,
		"peer_id", peerID,
		"hostname", hostname,
		"transfer_addr", transferAddr,
		"broadcast_addr", broadcastAddr,
		"web_port", cfg.Network.WebPort,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return disc.Run(ctx, udpConn) })
	g.Go(func() error { return engine.Serve(ctx, tcpLn) })
	g.Go(func() error { return web.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("landrop daemon stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeConfig, "config", "c", config.DefaultPath, "Path to the TOML config file")
}
