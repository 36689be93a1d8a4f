package cmd

import (
	"fmt"
	"io"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	cfgFile  string
	logLevel string
	logFile  io.Closer

	rootCmd = &cobra.Command{
		Use:   "seamless",
		Short: "seamless - share one pointer across machines",
		Long: `seamless lets the mouse pointer and keyboard focus move across several
machines on the same network as if their screens were one desktop.
Every machine runs the same peer; peers find each other over multicast.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default $HOME/.config/seamless/seamless.toml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.IntP("port", "p", 0, "application (unicast) UDP port")
	flags.String("group", "", "IPv4 multicast group used for discovery")
	flags.Int("discovery-port", 0, "discovery UDP port")
}

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"port":           "network.app_port",
	"group":          "network.multicast_group",
	"discovery-port": "network.discovery_port",
}

func setup(cmd *cobra.Command, _ []string) error {
	config.SetConfigPath(cfgFile)

	// Bound here rather than in init so a viper.Reset between runs keeps them
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if level != "" {
		if err := logger.SetLevel(level); err != nil {
			return err
		}
	}
	if cfg.Logging.File != "" {
		closer, err := logger.SetFile(cfg.Logging.File)
		if err != nil {
			return err
		}
		logFile = closer
	}
	return nil
}

func teardown(*cobra.Command, []string) error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
