package display

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/seamless/internal/logger"
)

// wlrRandrBackend uses wlr-randr for display detection
type wlrRandrBackend struct{}

func (w *wlrRandrBackend) Name() string { return "wlr-randr" }

func (w *wlrRandrBackend) Monitors(ctx context.Context) ([]Rect, error) {
	output, err := commandRunner(ctx, "wlr-randr", "--json")
	if err != nil {
		logger.Debug("wlr-randr JSON mode failed, falling back to text parsing")
		output, err = commandRunner(ctx, "wlr-randr")
		if err != nil {
			return nil, fmt.Errorf("wlr-randr: %w", err)
		}
		return parseWlrRandrText(output)
	}
	return parseWlrRandrJSON(output)
}

func parseWlrRandrJSON(output []byte) ([]Rect, error) {
	var outputs []struct {
		Name     string `json:"name"`
		Enabled  bool   `json:"enabled"`
		Position struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"position"`
		Modes []struct {
			Width   int  `json:"width"`
			Height  int  `json:"height"`
			Current bool `json:"current"`
		} `json:"modes"`
	}
	if err := json.Unmarshal(output, &outputs); err != nil {
		return nil, fmt.Errorf("parse wlr-randr json: %w", err)
	}

	var rects []Rect
	for i, out := range outputs {
		if !out.Enabled {
			continue
		}
		var width, height int
		for _, mode := range out.Modes {
			if mode.Current {
				width, height = mode.Width, mode.Height
				break
			}
		}
		// Skip monitors with invalid dimensions
		if width <= 0 || height <= 0 {
			logger.Warnf("Skipping monitor %s with invalid dimensions: %dx%d", out.Name, width, height)
			continue
		}
		rects = append(rects, Rect{
			ID:     uint32(i), //nolint:gosec // output count is tiny
			X:      out.Position.X,
			Y:      out.Position.Y,
			Width:  width,
			Height: height,
		})
	}
	if len(rects) == 0 {
		return nil, fmt.Errorf("no active monitors found")
	}
	return rects, nil
}

// parseWlrRandrText handles the plain output format:
//
//	DP-1 "Dell Inc. ..."
//	  Modes:
//	    2560x1440 px, 59.951000 Hz (preferred, current)
//	  Position: 0,0
func parseWlrRandrText(output []byte) ([]Rect, error) {
	var rects []Rect
	var current *Rect
	disabled := false
	id := uint32(0)

	flush := func() {
		if current != nil && !disabled && current.Width > 0 && current.Height > 0 {
			rects = append(rects, *current)
		}
		current = nil
		disabled = false
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// New monitor headers are not indented
		if !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t") {
			flush()
			current = &Rect{ID: id}
			id++
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.Contains(line, "current") && strings.Contains(line, " px"):
			res := strings.SplitN(strings.Fields(line)[0], "x", 2)
			if len(res) == 2 {
				current.Width, _ = strconv.Atoi(res[0])
				current.Height, _ = strconv.Atoi(res[1])
			}
		case strings.HasPrefix(line, "Position:"):
			coords := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "Position:")), ",")
			if len(coords) == 2 {
				current.X, _ = strconv.Atoi(strings.TrimSpace(coords[0]))
				current.Y, _ = strconv.Atoi(strings.TrimSpace(coords[1]))
			}
		case strings.HasPrefix(line, "Enabled: no"):
			disabled = true
		}
	}
	flush()

	if len(rects) == 0 {
		return nil, fmt.Errorf("no active monitors found")
	}
	return rects, nil
}

// xrandrBackend parses `xrandr --listmonitors` for X11 and XWayland sessions
type xrandrBackend struct{}

func (x *xrandrBackend) Name() string { return "xrandr" }

func (x *xrandrBackend) Monitors(ctx context.Context) ([]Rect, error) {
	output, err := commandRunner(ctx, "xrandr", "--listmonitors")
	if err != nil {
		return nil, fmt.Errorf("xrandr: %w", err)
	}
	return parseXrandrMonitors(output)
}

// parseXrandrMonitors reads lines such as
//
//	0: +*DP-1 2560/597x1440/336+0+0  DP-1
func parseXrandrMonitors(output []byte) ([]Rect, error) {
	var rects []Rect
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(fields[0], ":"), 10, 32)
		if err != nil {
			continue
		}

		// geometry: W/mmW x H/mmH + X + Y
		geom := strings.SplitN(fields[2], "+", 3)
		if len(geom) != 3 {
			continue
		}
		size := strings.SplitN(geom[0], "x", 2)
		if len(size) != 2 {
			continue
		}
		w, errW := strconv.Atoi(strings.SplitN(size[0], "/", 2)[0])
		h, errH := strconv.Atoi(strings.SplitN(size[1], "/", 2)[0])
		px, errX := strconv.Atoi(geom[1])
		py, errY := strconv.Atoi(geom[2])
		if errW != nil || errH != nil || errX != nil || errY != nil || w <= 0 || h <= 0 {
			continue
		}
		rects = append(rects, Rect{ID: uint32(id), X: px, Y: py, Width: w, Height: h})
	}
	if len(rects) == 0 {
		return nil, fmt.Errorf("no active monitors found")
	}
	return rects, nil
}
