package cmd

import (
	"fmt"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/ipc"
	"github.com/bnema/seamless/internal/ui"
	"github.com/spf13/cobra"
)

// releaseCmd represents the release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Bring the pointer back to this machine",
	Long: `Bring the pointer back to this machine from whichever peer holds it.
Sending SIGUSR1 to the running peer does the same.

This command is useful for keybindings in window managers like Hyprland.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(config.Get().IPC.SocketPath)
		if err := client.Release(); err != nil {
			return fmt.Errorf("failed to release pointer: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatResult(true, "release", "Pointer is back on this machine"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}
