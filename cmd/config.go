package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/input"
	"github.com/bnema/seamless/internal/logger"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage seamless configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Network]")
		logger.Infof("  Multicast Group: %s", cfg.Network.MulticastGroup)
		logger.Infof("  Discovery Port: %d", cfg.Network.DiscoveryPort)
		logger.Infof("  App Port: %d", cfg.Network.AppPort)
		if cfg.Network.Interface != "" {
			logger.Infof("  Interface: %s", cfg.Network.Interface)
		} else {
			logger.Info("  Interface: all")
		}

		logger.Info("\n[Timing]")
		logger.Infof("  Announce Interval: %s", cfg.Timing.AnnounceInterval)
		logger.Infof("  Peer Decay: %s", cfg.Timing.PeerDecay)
		logger.Infof("  Peer Sweep: %s", cfg.Timing.PeerSweep)
		logger.Infof("  Key Refresh: %s", cfg.Timing.KeyRefresh)
		logger.Infof("  Key Expiry: %s", cfg.Timing.KeyExpiry)

		logger.Info("\n[Pointer]")
		logger.Infof("  Edge Nudge: %d pixels", cfg.Pointer.EdgeNudge)
		logger.Infof("  Remote Speed: %d", cfg.Pointer.RemoteSpeed)
		if cfg.Pointer.AnchorX != 0 || cfg.Pointer.AnchorY != 0 {
			logger.Infof("  Anchor: %d,%d", cfg.Pointer.AnchorX, cfg.Pointer.AnchorY)
		}

		logger.Info("\n[Display]")
		logger.Infof("  Backend: %s", cfg.Display.Backend)
		for _, m := range cfg.Display.Monitors {
			logger.Infof("    - #%d %dx%d at %d,%d", m.ID, m.Width, m.Height, m.X, m.Y)
		}

		logger.Info("\n[Input]")
		logger.Infof("  Capture: %v", cfg.Input.Capture)
		logger.Infof("  Inject: %v", cfg.Input.Inject)
		logger.Infof("  Mouse Device: %s", orAuto(cfg.Input.MouseDevice))
		logger.Infof("  Keyboard Device: %s", orAuto(cfg.Input.KeyboardDevice))

		logger.Info("\n[IPC]")
		logger.Infof("  Socket: %s", cfg.IPC.SocketPath)
		logger.Infof("  Overlay Socket: %s", cfg.IPC.OverlaySocketPath)

		logger.Info("\n[mDNS]")
		logger.Infof("  Enabled: %v", cfg.MDNS.Enabled)
		logger.Infof("  Service: %s", cfg.MDNS.Service)
		return nil
	},
}

func orAuto(s string) string {
	if s == "" {
		return "auto"
	}
	return s
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file",
	Long: `Create the configuration file. Unless --defaults is given an interactive
form asks for the network, display backend and input devices.`,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		logger.Infof("Configuration file already exists at: %s", configPath)
		logger.Info("Use --force to overwrite")
		return nil
	}

	c := *config.Get()
	if defaults, _ := cmd.Flags().GetBool("defaults"); !defaults {
		if err := runInitForm(&c); err != nil {
			return err
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}

	config.Update(&c)
	if err := config.Save(); err != nil {
		return err
	}

	logger.Infof("Configuration initialized at: %s", configPath)
	logger.Info("\nYou can now:")
	logger.Info("  - Edit the configuration file directly")
	logger.Info("  - Use 'seamless monitors' to check what will be announced")
	logger.Info("  - Use 'seamless run' on every machine")
	return nil
}

func runInitForm(c *config.Config) error {
	discovery := strconv.Itoa(c.Network.DiscoveryPort)
	app := strconv.Itoa(c.Network.AppPort)
	level := c.Logging.Level
	if level == "" {
		level = "info"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Multicast group").
				Description("Every machine must use the same group").
				Value(&c.Network.MulticastGroup),
			huh.NewInput().
				Title("Discovery port").
				Validate(portInput).
				Value(&discovery),
			huh.NewInput().
				Title("Application port").
				Validate(portInput).
				Value(&app),
			huh.NewInput().
				Title("Interface").
				Description("Leave empty to use every multicast capable interface").
				Value(&c.Network.Interface),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Monitor backend").
				Options(huh.NewOptions("auto", "wlr-randr", "xrandr", "static")...).
				Value(&c.Display.Backend),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&level),
			huh.NewConfirm().
				Title("Advertise over mDNS?").
				Description("Lets 'seamless browse' find this machine").
				Value(&c.MDNS.Enabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("configuration cancelled: %w", err)
	}

	c.Network.DiscoveryPort, _ = strconv.Atoi(discovery)
	c.Network.AppPort, _ = strconv.Atoi(app)
	c.Logging.Level = level

	if !c.Input.Capture {
		return nil
	}
	var err error
	if c.Input.MouseDevice, err = selectDevice(input.DeviceMouse); err != nil {
		return err
	}
	if c.Input.KeyboardDevice, err = selectDevice(input.DeviceKeyboard); err != nil {
		return err
	}
	return nil
}

func portInput(s string) error {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return errors.New("enter a port between 1 and 65535")
	}
	return nil
}

// selectDevice asks for a capture device. An empty result keeps automatic
// detection.
func selectDevice(kind input.DeviceKind) (string, error) {
	devices, err := input.ListDevices(kind)
	if err != nil {
		logger.Warnf("Cannot list %s devices, keeping automatic detection: %v", kind, err)
		return "", nil
	}
	if len(devices) == 0 {
		return "", nil
	}
	if len(devices) == 1 {
		logger.Infof("Auto-selected %s device: %s", kind, devices[0].Descriptive())
		return devices[0].Preferred(), nil
	}

	options := []huh.Option[string]{huh.NewOption("Detect automatically", "")}
	for _, dev := range devices {
		options = append(options, huh.NewOption(dev.Descriptive(), dev.Preferred()))
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Select %s device", kind)).
				Description("Input is captured from this device while the pointer is away").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("device selection cancelled: %w", err)
	}
	return selected, nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	configInitCmd.Flags().Bool("defaults", false, "Write defaults without asking")

	rootCmd.AddCommand(configCmd)
}
