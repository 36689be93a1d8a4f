package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/ui"
	"github.com/spf13/cobra"
)

// DisplayInfo represents the display information output
type DisplayInfo struct {
	Backend  string         `json:"backend"`
	Monitors []display.Rect `json:"monitors"`
	Error    string         `json:"error,omitempty"`
}

var jsonOutput bool

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Show the local monitors announced to peers",
	Long:  `Query the local monitors the same way the peer does at startup and show what would be announced.`,
	RunE:  runMonitors,
}

func init() {
	monitorsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(monitorsCmd)
}

func runMonitors(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	monitors, err := display.QueryLocal(cfg.Display)

	if jsonOutput {
		info := DisplayInfo{Backend: cfg.Display.Backend, Monitors: monitors}
		if err != nil {
			info.Error = err.Error()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	if err != nil {
		return fmt.Errorf("failed to query monitors: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.HeaderStyle.Render(fmt.Sprintf("Monitors (%s backend)", cfg.Display.Backend)))
	fmt.Fprintln(cmd.OutOrStdout(), ui.MonitorTable(monitors))
	return nil
}
