//go:build !linux

package input

import (
	"context"

	"github.com/bnema/seamless/internal/display"
)

// UinputInjector is unavailable off Linux
type UinputInjector struct{}

// NewUinputInjector always fails off Linux
func NewUinputInjector(*Cursor) (*UinputInjector, error) {
	return nil, ErrUnsupported
}

func (*UinputInjector) MoveTo(display.Position) error { return ErrUnsupported }
func (*UinputInjector) Key(KeyInput) error            { return ErrUnsupported }
func (*UinputInjector) Close() error                  { return nil }

// EvdevSource is unavailable off Linux
type EvdevSource struct{}

// NewEvdevSource always fails off Linux
func NewEvdevSource(*Cursor, string, string) (*EvdevSource, error) {
	return nil, ErrUnsupported
}

func (*EvdevSource) Run(context.Context, Events) error { return ErrUnsupported }
func (*EvdevSource) SetGrab(bool) error                { return ErrUnsupported }
func (*EvdevSource) EchoesInjection() bool             { return false }

// DeviceKind selects mice or keyboards when listing devices
type DeviceKind int

const (
	DeviceMouse DeviceKind = iota
	DeviceKeyboard
)

func (k DeviceKind) String() string {
	if k == DeviceKeyboard {
		return "keyboard"
	}
	return "mouse"
}

// Device describes an input device node
type Device struct {
	Path    string
	Name    string
	Symlink string
}

func (d Device) Descriptive() string { return d.Name + " (" + d.Path + ")" }
func (d Device) Preferred() string   { return d.Path }

// ListDevices always fails off Linux
func ListDevices(DeviceKind) ([]Device, error) {
	return nil, ErrUnsupported
}
