package cmd

import (
	"fmt"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/ipc"
	"github.com/bnema/seamless/internal/logger"
	"github.com/bnema/seamless/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Show when the pointer is on another machine",
	Long: `Run a full screen terminal indicator. The running peer tells it over a
local socket whenever the pointer leaves or comes back to this machine.
Start it in a terminal that stays visible, for example a dropdown terminal.`,
	RunE: runOverlay,
}

func init() {
	rootCmd.AddCommand(overlayCmd)
}

func runOverlay(cmd *cobra.Command, _ []string) error {
	p := tea.NewProgram(ui.NewOverlayModel(), tea.WithAltScreen())

	server := ipc.NewSocketServer(config.Get().IPC.OverlaySocketPath, ipc.Handlers{
		Indicator: ui.IndicatorSender(p),
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start overlay socket: %w", err)
	}
	defer server.Stop()
	logger.Debugf("Overlay listening on %s", server.Path())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("overlay failed: %w", err)
	}
	return nil
}
