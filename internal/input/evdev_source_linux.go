//go:build linux

package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bnema/seamless/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
)

// EvdevSource reads the physical mouse and keyboard from /dev/input.
type EvdevSource struct {
	mu           sync.Mutex
	cursor       *Cursor
	mousePath    string
	keyboardPath string
	devices      []*evdev.InputDevice
	grabbed      bool
}

// NewEvdevSource creates a source. Empty paths pick the first matching
// device.
func NewEvdevSource(cursor *Cursor, mousePath, keyboardPath string) (*EvdevSource, error) {
	if _, err := os.Stat("/dev/input"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &EvdevSource{cursor: cursor, mousePath: mousePath, keyboardPath: keyboardPath}, nil
}

// Run opens the devices and delivers events until ctx is done.
func (e *EvdevSource) Run(ctx context.Context, ev Events) error {
	mouse, err := e.open(e.mousePath, isMouse)
	if err != nil {
		return fmt.Errorf("failed to find mouse device: %w", err)
	}
	keyboard, err := e.open(e.keyboardPath, isKeyboard)
	if err != nil {
		// Don't fail if keyboard not found, mouse is more important
		logger.Warnf("Failed to find keyboard device: %v", err)
	}

	e.mu.Lock()
	e.devices = []*evdev.InputDevice{mouse}
	if keyboard != nil {
		e.devices = append(e.devices, keyboard)
	}
	devices := e.devices
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.grabbed {
			e.releaseLocked()
		}
		for _, d := range e.devices {
			d.File.Close()
		}
		e.devices = nil
	}()

	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d *evdev.InputDevice) {
			defer wg.Done()
			e.read(ctx, d, ev)
		}(d)
	}

	<-ctx.Done()
	// Closing the files unblocks pending reads
	for _, d := range devices {
		d.File.Close()
	}
	wg.Wait()
	return ctx.Err()
}

// EchoesInjection is false: the uinput device is never opened for capture,
// so injected moves do not come back as samples.
func (e *EvdevSource) EchoesInjection() bool { return false }

// SetGrab takes or releases exclusive access to the devices.
func (e *EvdevSource) SetGrab(grab bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if grab == e.grabbed {
		return nil
	}
	if !grab {
		e.releaseLocked()
		return nil
	}
	for i, d := range e.devices {
		if err := d.Grab(); err != nil {
			for _, g := range e.devices[:i] {
				g.Release()
			}
			return fmt.Errorf("failed to grab %s: %w", d.Name, err)
		}
	}
	e.grabbed = true
	logger.Debug("Grabbed exclusive access to input devices")
	return nil
}

func (e *EvdevSource) releaseLocked() {
	for _, d := range e.devices {
		d.Release()
	}
	e.grabbed = false
	logger.Debug("Released exclusive access to input devices")
}

func (e *EvdevSource) open(path string, match func(*evdev.InputDevice) bool) (*evdev.InputDevice, error) {
	if path != "" {
		d, err := evdev.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open configured device %s: %w", path, err)
		}
		logger.Infof("Using configured input device: %s (%s)", d.Name, path)
		return d, nil
	}

	devices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	var found *evdev.InputDevice
	for _, d := range devices {
		if found == nil && match(d) && !strings.Contains(strings.ToLower(d.Name), "seamless") {
			found = d
			continue
		}
		d.File.Close()
	}
	if found == nil {
		return nil, errors.New("no suitable device found")
	}
	logger.Infof("Found input device: %s at %s", found.Name, found.Fn)
	return found, nil
}

func (e *EvdevSource) read(ctx context.Context, d *evdev.InputDevice, ev Events) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Input capture panic on %s: %v", d.Name, r)
		}
	}()

	var dx, dy int
	for {
		events, err := d.Read()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !strings.Contains(err.Error(), "resource temporarily unavailable") {
				logger.Errorf("Error reading %s: %v", d.Name, err)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}

		for _, event := range events {
			switch event.Type {
			case evdev.EV_REL:
				switch event.Code {
				case evdev.REL_X:
					dx += int(event.Value)
				case evdev.REL_Y:
					dy += int(event.Value)
				}
			case evdev.EV_SYN:
				if (dx != 0 || dy != 0) && ev.Pointer != nil {
					ev.Pointer(e.cursor.Move(dx, dy))
				}
				dx, dy = 0, 0
			case evdev.EV_KEY:
				// value 2 is autorepeat
				if event.Value != 0 && event.Value != 1 {
					continue
				}
				key, ok := keyFromEvdev(event.Code)
				if !ok || ev.Key == nil {
					continue
				}
				dir := Up
				if event.Value == 1 {
					dir = Down
				}
				ev.Key(KeyInput{Key: key, Direction: dir})
			}
		}
	}
}

func keyFromEvdev(code uint16) (Key, bool) {
	switch code {
	case evdev.BTN_LEFT:
		return Key{Kind: KindMouse, Code: ButtonLeft}, true
	case evdev.BTN_RIGHT:
		return Key{Kind: KindMouse, Code: ButtonRight}, true
	case evdev.BTN_MIDDLE:
		return Key{Kind: KindMouse, Code: ButtonMiddle}, true
	case evdev.BTN_SIDE:
		return Key{Kind: KindMouse, Code: ButtonBack}, true
	case evdev.BTN_EXTRA:
		return Key{Kind: KindMouse, Code: ButtonForward}, true
	}
	return KeyFromCode(code)
}

func isMouse(d *evdev.InputDevice) bool {
	for capType, codes := range d.Capabilities {
		if capType.Type != evdev.EV_REL {
			continue
		}
		for _, c := range codes {
			if c.Code == evdev.REL_X {
				return true
			}
		}
	}
	return false
}

func isKeyboard(d *evdev.InputDevice) bool {
	for capType, codes := range d.Capabilities {
		if capType.Type != evdev.EV_KEY {
			continue
		}
		for _, c := range codes {
			if c.Code == evdev.KEY_A || c.Code == evdev.KEY_SPACE {
				return true
			}
		}
	}
	return false
}
