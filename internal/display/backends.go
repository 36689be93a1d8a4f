package display

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/logger"
)

// Backend is a platform query for the local monitor layout.
type Backend interface {
	Name() string
	Monitors(ctx context.Context) ([]Rect, error)
}

// commandRunner runs an external tool and returns its stdout. Tests replace it.
var commandRunner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found: %w", name, err)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// staticBackend serves monitors listed in the configuration
type staticBackend struct {
	monitors []config.MonitorConfig
}

func (s *staticBackend) Name() string { return "static" }

func (s *staticBackend) Monitors(context.Context) ([]Rect, error) {
	if len(s.monitors) == 0 {
		return nil, fmt.Errorf("no static monitors configured")
	}
	rects := make([]Rect, 0, len(s.monitors))
	for _, m := range s.monitors {
		rects = append(rects, Rect{ID: uint32(m.ID), X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}) //nolint:gosec // ids are small config values
	}
	return rects, nil
}

// NewBackend returns the backend named in cfg. "auto" tries wlr-randr,
// xrandr and the static list in that order.
func NewBackend(cfg config.DisplayConfig) Backend {
	static := &staticBackend{monitors: cfg.Monitors}
	switch cfg.Backend {
	case "wlr-randr":
		return &wlrRandrBackend{}
	case "xrandr":
		return &xrandrBackend{}
	case "static":
		return static
	default:
		return &chainBackend{backends: []Backend{&wlrRandrBackend{}, &xrandrBackend{}, static}}
	}
}

// chainBackend returns the first backend that yields monitors
type chainBackend struct {
	backends []Backend
}

func (c *chainBackend) Name() string { return "auto" }

func (c *chainBackend) Monitors(ctx context.Context) ([]Rect, error) {
	for _, b := range c.backends {
		rects, err := b.Monitors(ctx)
		if err == nil && len(rects) > 0 {
			logger.Debugf("Display backend %s found %d monitor(s)", b.Name(), len(rects))
			return rects, nil
		}
		logger.Debugf("Display backend %s failed: %v", b.Name(), err)
	}
	return nil, fmt.Errorf("no display backend available")
}

// QueryLocal runs the configured backend with a short timeout.
func QueryLocal(cfg config.DisplayConfig) ([]Rect, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rects, err := NewBackend(cfg).Monitors(ctx)
	if err != nil {
		return nil, err
	}
	return NewClientDisplays(Self(), rects).Displays, nil
}
