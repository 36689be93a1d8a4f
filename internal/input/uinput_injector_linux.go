//go:build linux

package input

import (
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/logger"
)

// UinputInjector injects through virtual uinput devices. uinput pointers are
// relative, so absolute moves are turned into deltas from the tracked cursor.
type UinputInjector struct {
	mu       sync.Mutex
	mouse    uinput.Mouse
	keyboard uinput.Keyboard
	cursor   *Cursor
	closed   bool
}

// NewUinputInjector creates the virtual mouse and keyboard.
func NewUinputInjector(cursor *Cursor) (*UinputInjector, error) {
	mouse, err := uinput.CreateMouse("/dev/uinput", []byte("Seamless Virtual Mouse"))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual mouse: %w", err)
	}

	keyboard, err := uinput.CreateKeyboard("/dev/uinput", []byte("Seamless Virtual Keyboard"))
	if err != nil {
		mouse.Close()
		return nil, fmt.Errorf("failed to create virtual keyboard: %w", err)
	}

	return &UinputInjector{mouse: mouse, keyboard: keyboard, cursor: cursor}, nil
}

// MoveTo positions the cursor at p
func (u *UinputInjector) MoveTo(p display.Position) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("injector closed")
	}

	delta := p.Sub(u.cursor.Position())
	u.cursor.Set(p)
	if delta.X == 0 && delta.Y == 0 {
		return nil
	}
	logger.Debugf("Positioning cursor at %s, moving by %s", p, delta)
	return u.mouse.Move(int32(delta.X), int32(delta.Y)) //nolint:gosec // screen deltas fit in int32
}

// Key presses or releases a keyboard key or mouse button
func (u *UinputInjector) Key(in KeyInput) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("injector closed")
	}

	pressed := in.Direction == Down
	if in.Key.Kind == KindKeyboard {
		if pressed {
			return u.keyboard.KeyDown(int(in.Key.Code))
		}
		return u.keyboard.KeyUp(int(in.Key.Code))
	}

	switch in.Key.Code {
	case ButtonLeft:
		if pressed {
			return u.mouse.LeftPress()
		}
		return u.mouse.LeftRelease()
	case ButtonRight:
		if pressed {
			return u.mouse.RightPress()
		}
		return u.mouse.RightRelease()
	case ButtonMiddle:
		if pressed {
			return u.mouse.MiddlePress()
		}
		return u.mouse.MiddleRelease()
	case ButtonBack, ButtonForward:
		// uinput.Mouse exposes no side buttons
		return fmt.Errorf("%w: %s", ErrNotImplemented, in.Key.Name())
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, in.Key)
	}
}

// Close destroys the virtual devices
func (u *UinputInjector) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	err := u.mouse.Close()
	if e := u.keyboard.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
