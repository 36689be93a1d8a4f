package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/logger"
	"github.com/bnema/seamless/internal/mdns"
	"github.com/bnema/seamless/internal/ui"
	"github.com/spf13/cobra"
)

var browseTimeout time.Duration

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List peers advertising over mDNS",
	Long: `List peers that advertise themselves over mDNS (mdns.enabled = true).
This is informational; peers find each other over multicast either way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), browseTimeout)
		defer cancel()

		logger.Infof("Browsing for %s for %s", config.Get().MDNS.Service, browseTimeout)
		instances, err := mdns.Browse(ctx, mdns.Config{Service: config.Get().MDNS.Service})
		if err != nil {
			return fmt.Errorf("browse failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.InstanceTable(instances))
		return nil
	},
}

func init() {
	browseCmd.Flags().DurationVar(&browseTimeout, "timeout", 3*time.Second, "how long to listen for answers")
	rootCmd.AddCommand(browseCmd)
}
