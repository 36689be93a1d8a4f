//go:build linux

package input

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
)

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

// Device describes an evdev node that can be captured
type Device struct {
	Path    string
	Name    string
	Symlink string // stable /dev/input/by-id or by-path name, if any
}

// Descriptive is the label shown when picking a device
func (d Device) Descriptive() string {
	if d.Symlink != "" {
		return fmt.Sprintf("%s (%s → %s)", d.Name, d.Symlink, d.Path)
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Path)
}

// Preferred returns the symlink when there is one. Event numbers change
// across reboots, by-id names don't.
func (d Device) Preferred() string {
	if d.Symlink != "" {
		return d.Symlink
	}
	return d.Path
}

// ListDevices returns the capturable devices of the given kind, skipping
// our own virtual devices.
func ListDevices(kind DeviceKind) ([]Device, error) {
	evdevices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	match := isMouse
	if kind == DeviceKeyboard {
		match = isKeyboard
	}

	var devices []Device
	for _, d := range evdevices {
		if match(d) && !strings.Contains(strings.ToLower(d.Name), "seamless") {
			devices = append(devices, Device{Path: d.Fn, Name: d.Name, Symlink: findSymlink(d.Fn)})
		}
		d.File.Close()
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

func findSymlink(devicePath string) string {
	for _, dir := range []string{"/dev/input/by-id", "/dev/input/by-path"} {
		if link := symlinkIn(dir, devicePath); link != "" {
			return link
		}
	}
	return ""
}

// symlinkIn finds a link in dir pointing at devicePath
func symlinkIn(dir, devicePath string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		target, err := os.Readlink(full)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		if filepath.Clean(target) == devicePath {
			return full
		}
	}
	return ""
}
