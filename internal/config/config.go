// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Pointer PointerConfig `mapstructure:"pointer"`
	Display DisplayConfig `mapstructure:"display"`
	Input   InputConfig   `mapstructure:"input"`
	IPC     IPCConfig     `mapstructure:"ipc"`
	MDNS    MDNSConfig    `mapstructure:"mdns"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// NetworkConfig describes the discovery group and the unicast port
type NetworkConfig struct {
	MulticastGroup string `mapstructure:"multicast_group"`
	DiscoveryPort  int    `mapstructure:"discovery_port"`
	AppPort        int    `mapstructure:"app_port"`
	Interface      string `mapstructure:"interface"` // empty joins on every multicast capable interface
}

// TimingConfig holds every periodic interval and timeout
type TimingConfig struct {
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	PeerDecay        time.Duration `mapstructure:"peer_decay"`
	PeerSweep        time.Duration `mapstructure:"peer_sweep"`
	KeyRefresh       time.Duration `mapstructure:"key_refresh"`
	KeyExpiry        time.Duration `mapstructure:"key_expiry"`
}

// PointerConfig tunes the ownership controller
type PointerConfig struct {
	EdgeNudge   int `mapstructure:"edge_nudge"`
	RemoteSpeed int `mapstructure:"remote_speed"`
	AnchorX     int `mapstructure:"anchor_x"` // 0 means centre of the first display
	AnchorY     int `mapstructure:"anchor_y"`
}

// DisplayConfig selects the local monitor query backend
type DisplayConfig struct {
	Backend  string          `mapstructure:"backend"` // auto, wlr-randr, xrandr, static
	Monitors []MonitorConfig `mapstructure:"monitors"`
}

// MonitorConfig is a statically configured monitor
type MonitorConfig struct {
	ID     int `mapstructure:"id"`
	X      int `mapstructure:"x"`
	Y      int `mapstructure:"y"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// InputConfig controls OS input capture and injection
type InputConfig struct {
	Capture        bool   `mapstructure:"capture"`
	Inject         bool   `mapstructure:"inject"`
	MouseDevice    string `mapstructure:"mouse_device"`
	KeyboardDevice string `mapstructure:"keyboard_device"`
}

// IPCConfig holds the local unix socket locations
type IPCConfig struct {
	SocketPath        string `mapstructure:"socket_path"`
	OverlaySocketPath string `mapstructure:"overlay_socket_path"`
}

// MDNSConfig controls the optional zeroconf advertisement
type MDNSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"` // Override LOG_LEVEL env var
	File  string `mapstructure:"file"`
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Network: NetworkConfig{
			MulticastGroup: "239.255.77.77",
			DiscoveryPort:  47770,
			AppPort:        47771,
		},
		Timing: TimingConfig{
			AnnounceInterval: time.Second,
			PeerDecay:        5 * time.Second,
			PeerSweep:        5 * time.Second,
			KeyRefresh:       25 * time.Millisecond,
			KeyExpiry:        75 * time.Millisecond,
		},
		Pointer: PointerConfig{
			EdgeNudge:   5,
			RemoteSpeed: 1,
		},
		Display: DisplayConfig{
			Backend:  "auto",
			Monitors: []MonitorConfig{},
		},
		Input: InputConfig{
			Capture: true,
			Inject:  true,
		},
		IPC: IPCConfig{
			SocketPath:        defaultSocketPath("seamless"),
			OverlaySocketPath: defaultSocketPath("seamless-overlay"),
		},
		MDNS: MDNSConfig{
			Enabled: false,
			Service: "_seamless._udp",
		},
		Logging: LoggingConfig{},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("seamless")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "seamless"))
		}
		viper.AddConfigPath("/etc/seamless")
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	viper.SetEnvPrefix("SEAMLESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A --config path that doesn't exist yet is fine too, config init creates it
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	return nil
}

// setDefaults registers individual keys so file values merge field by field
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("network.multicast_group", d.Network.MulticastGroup)
	viper.SetDefault("network.discovery_port", d.Network.DiscoveryPort)
	viper.SetDefault("network.app_port", d.Network.AppPort)
	viper.SetDefault("network.interface", d.Network.Interface)

	viper.SetDefault("timing.announce_interval", d.Timing.AnnounceInterval)
	viper.SetDefault("timing.peer_decay", d.Timing.PeerDecay)
	viper.SetDefault("timing.peer_sweep", d.Timing.PeerSweep)
	viper.SetDefault("timing.key_refresh", d.Timing.KeyRefresh)
	viper.SetDefault("timing.key_expiry", d.Timing.KeyExpiry)

	viper.SetDefault("pointer.edge_nudge", d.Pointer.EdgeNudge)
	viper.SetDefault("pointer.remote_speed", d.Pointer.RemoteSpeed)
	viper.SetDefault("pointer.anchor_x", d.Pointer.AnchorX)
	viper.SetDefault("pointer.anchor_y", d.Pointer.AnchorY)

	viper.SetDefault("display.backend", d.Display.Backend)
	viper.SetDefault("display.monitors", d.Display.Monitors)

	viper.SetDefault("input.capture", d.Input.Capture)
	viper.SetDefault("input.inject", d.Input.Inject)
	viper.SetDefault("input.mouse_device", d.Input.MouseDevice)
	viper.SetDefault("input.keyboard_device", d.Input.KeyboardDevice)

	viper.SetDefault("ipc.socket_path", d.IPC.SocketPath)
	viper.SetDefault("ipc.overlay_socket_path", d.IPC.OverlaySocketPath)

	viper.SetDefault("mdns.enabled", d.MDNS.Enabled)
	viper.SetDefault("mdns.service", d.MDNS.Service)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.file", d.Logging.File)
}

// Validate checks values that would otherwise fail late at socket bind time
func (c *Config) Validate() error {
	group, err := netip.ParseAddr(c.Network.MulticastGroup)
	if err != nil {
		return fmt.Errorf("invalid multicast group %q: %w", c.Network.MulticastGroup, err)
	}
	if !group.Is4() || !group.IsMulticast() {
		return fmt.Errorf("multicast group %s is not an IPv4 multicast address", group)
	}
	if err := validPort("network.discovery_port", c.Network.DiscoveryPort); err != nil {
		return err
	}
	if err := validPort("network.app_port", c.Network.AppPort); err != nil {
		return err
	}
	if c.Network.DiscoveryPort == c.Network.AppPort {
		return fmt.Errorf("discovery and application ports must differ (both %d)", c.Network.AppPort)
	}

	durations := map[string]time.Duration{
		"timing.announce_interval": c.Timing.AnnounceInterval,
		"timing.peer_decay":        c.Timing.PeerDecay,
		"timing.peer_sweep":        c.Timing.PeerSweep,
		"timing.key_refresh":       c.Timing.KeyRefresh,
		"timing.key_expiry":        c.Timing.KeyExpiry,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Timing.KeyExpiry <= c.Timing.KeyRefresh {
		return fmt.Errorf("timing.key_expiry (%s) must exceed timing.key_refresh (%s)", c.Timing.KeyExpiry, c.Timing.KeyRefresh)
	}

	if c.Pointer.RemoteSpeed < 1 {
		return fmt.Errorf("pointer.remote_speed must be at least 1")
	}
	if c.Pointer.EdgeNudge < 1 {
		return fmt.Errorf("pointer.edge_nudge must be at least 1")
	}

	switch c.Display.Backend {
	case "auto", "wlr-randr", "xrandr", "static":
	default:
		return fmt.Errorf("unknown display backend %q", c.Display.Backend)
	}
	for _, m := range c.Display.Monitors {
		if m.Width <= 0 || m.Height <= 0 {
			return fmt.Errorf("monitor %d has invalid size %dx%d", m.ID, m.Width, m.Height)
		}
	}
	return nil
}

func validPort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", key, port)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		d := DefaultConfig
		return &d
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", filepath.Dir(configPath))
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Update stores c as the current configuration and mirrors it into viper
// so a following Save persists it.
func Update(c *Config) {
	viper.Set("network.multicast_group", c.Network.MulticastGroup)
	viper.Set("network.discovery_port", c.Network.DiscoveryPort)
	viper.Set("network.app_port", c.Network.AppPort)
	viper.Set("network.interface", c.Network.Interface)
	viper.Set("display.backend", c.Display.Backend)
	viper.Set("input.mouse_device", c.Input.MouseDevice)
	viper.Set("input.keyboard_device", c.Input.KeyboardDevice)
	viper.Set("logging.level", c.Logging.Level)
	viper.Set("mdns.enabled", c.MDNS.Enabled)
	cfg = c
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/seamless/seamless.toml"
	}

	return filepath.Join(home, ".config", "seamless", "seamless.toml")
}

// defaultSocketPath returns /tmp/<name>-<user>.sock
func defaultSocketPath(name string) string {
	username := "default"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.sock", name, username))
}
