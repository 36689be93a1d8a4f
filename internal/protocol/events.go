// Package protocol encodes application events as short text frames, one frame
// per UDP datagram. Every event type owns a single character prefix.
package protocol

import (
	"net/netip"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/input"
)

// Event is one of PointerPosition, DisplayAnnouncement, DisplaysRequest or
// KeyEvent.
type Event interface {
	event()
}

// PointerPosition is the pointer's position in the global space.
type PointerPosition struct {
	X int
	Y int
}

// DisplayAnnouncement carries the sender's monitors. The receiver attributes
// it to the datagram's source address.
type DisplayAnnouncement struct {
	Displays []display.Rect
}

// DisplaysRequest asks the peer that observes itself at Addr for its monitors.
type DisplaysRequest struct {
	Addr netip.Addr
}

// KeyEvent is a key or mouse button transition.
type KeyEvent struct {
	Input input.KeyInput
}

func (PointerPosition) event()     {}
func (DisplayAnnouncement) event() {}
func (DisplaysRequest) event()     {}
func (KeyEvent) event()            {}

// Position returns the event as a display position
func (p PointerPosition) Position() display.Position {
	return display.Position{X: p.X, Y: p.Y}
}
