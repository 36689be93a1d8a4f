// Package input captures local pointer and key events, injects remote ones,
// and keeps held keys consistent across lossy delivery.
package input

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownKey is returned for a key name or button index outside the table
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidDirection is returned for a direction token other than up or down
	ErrInvalidDirection = errors.New("invalid direction")
	// ErrNotImplemented is returned for injections the backend cannot perform
	ErrNotImplemented = errors.New("not implemented")
	// ErrUnsupported is returned on platforms without evdev/uinput
	ErrUnsupported = errors.New("input backend not supported on this platform")
)

// Direction is the edge of a key transition
type Direction uint8

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection reads the wire token of a direction
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "down":
		return Down, nil
	case "up":
		return Up, nil
	}
	return Down, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Kind separates keyboard keys from mouse buttons
type Kind uint8

const (
	KindKeyboard Kind = iota
	KindMouse
)

// Key is a keyboard key (Linux keycode) or a mouse button (index 1..5).
type Key struct {
	Kind Kind
	Code uint16
}

// KeyInput is a key together with the direction it moved in
type KeyInput struct {
	Key       Key
	Direction Direction
}

func (k KeyInput) String() string {
	return k.Key.String() + " " + k.Direction.String()
}

// Linux input-event-codes for the supported keyboard keys.
var keyCodes = map[string]uint16{
	"Escape": 1, "Key1": 2, "Key2": 3, "Key3": 4, "Key4": 5, "Key5": 6,
	"Key6": 7, "Key7": 8, "Key8": 9, "Key9": 10, "Key0": 11, "Backspace": 14,
	"Tab": 15, "Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21, "U": 22,
	"I": 23, "O": 24, "P": 25, "Enter": 28, "LControl": 29, "A": 30, "S": 31,
	"D": 32, "F": 33, "G": 34, "H": 35, "J": 36, "K": 37, "L": 38,
	"LShift": 42, "Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,
	"RShift": 54, "LAlt": 56, "Space": 57, "CapsLock": 58,
	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64, "F7": 65,
	"F8": 66, "F9": 67, "F10": 68, "F11": 87, "F12": 88,
	"RControl": 97, "RAlt": 100, "Home": 102, "Up": 103, "PageUp": 104,
	"Left": 105, "Right": 106, "End": 107, "Down": 108, "PageDown": 109,
	"Insert": 110, "Delete": 111, "Meta": 125,
}

var keyNames = func() map[uint16]string {
	names := make(map[uint16]string, len(keyCodes))
	for name, code := range keyCodes {
		names[code] = name
	}
	return names
}()

// Mouse buttons, numbered as on the wire
const (
	ButtonLeft    uint16 = 1
	ButtonRight   uint16 = 2
	ButtonMiddle  uint16 = 3
	ButtonBack    uint16 = 4
	ButtonForward uint16 = 5
)

var buttonNames = map[uint16]string{
	ButtonLeft:    "Left",
	ButtonRight:   "Right",
	ButtonMiddle:  "Middle",
	ButtonBack:    "Back",
	ButtonForward: "Forward",
}

// KeyNamed returns the keyboard key with the given table name.
func KeyNamed(name string) (Key, error) {
	code, ok := keyCodes[name]
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return Key{Kind: KindKeyboard, Code: code}, nil
}

// KeyFromCode returns the keyboard key for a Linux keycode if it is in the table.
func KeyFromCode(code uint16) (Key, bool) {
	_, ok := keyNames[code]
	return Key{Kind: KindKeyboard, Code: code}, ok
}

// MouseButton returns the button with the given wire index.
func MouseButton(index uint16) (Key, error) {
	if _, ok := buttonNames[index]; !ok {
		return Key{}, fmt.Errorf("%w: mouse button %d", ErrUnknownKey, index)
	}
	return Key{Kind: KindMouse, Code: index}, nil
}

// Name is the human readable name of the key
func (k Key) Name() string {
	if k.Kind == KindMouse {
		if n, ok := buttonNames[k.Code]; ok {
			return n
		}
		return "Button" + strconv.Itoa(int(k.Code))
	}
	if n, ok := keyNames[k.Code]; ok {
		return n
	}
	return "Code" + strconv.Itoa(int(k.Code))
}

// String returns the wire token: K_<name> or M_<index>.
func (k Key) String() string {
	if k.Kind == KindMouse {
		return "M_" + strconv.Itoa(int(k.Code))
	}
	return "K_" + k.Name()
}

// ParseKey reads a wire token produced by Key.String.
func ParseKey(token string) (Key, error) {
	switch {
	case strings.HasPrefix(token, "K_"):
		return KeyNamed(strings.TrimPrefix(token, "K_"))
	case strings.HasPrefix(token, "M_"):
		idx, err := strconv.ParseUint(strings.TrimPrefix(token, "M_"), 10, 16)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, token)
		}
		return MouseButton(uint16(idx))
	}
	return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, token)
}

// KeyNames lists every keyboard key name in the table.
func KeyNames() []string {
	names := make([]string, 0, len(keyCodes))
	for name := range keyCodes {
		names = append(names, name)
	}
	return names
}
