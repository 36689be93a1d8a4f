package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/ipc"
	"github.com/bnema/seamless/internal/ui"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running peer",
	Long:  `Query the running peer over its local socket and show its identity, pointer ownership, alive peers and the shared layout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(config.Get().IPC.SocketPath)
		st, err := client.Status()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), ui.FormatStatus(false, "seamless is not running"))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.StatusView(st))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}
