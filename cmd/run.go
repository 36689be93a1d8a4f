package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/logger"
	"github.com/bnema/seamless/internal/node"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this machine as a peer",
	Long: `Run this machine as a peer of the shared desktop. The peer announces
itself on the multicast group, exchanges monitor layouts with the other
peers and hands the pointer over when it crosses a screen edge.

Capturing and injecting input needs access to /dev/input and /dev/uinput,
usually root or membership of the input group.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()
	if os.Geteuid() != 0 && (cfg.Input.Capture || cfg.Input.Inject) {
		logger.Warn("Not running as root; input capture or injection may be unavailable")
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Discovery on %s:%d, peers reach us on UDP %d",
		cfg.Network.MulticastGroup, cfg.Network.DiscoveryPort, cfg.Network.AppPort)
	err = n.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("Shutting down")
		return nil
	}
	return err
}
