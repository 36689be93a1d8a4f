// Package display models every machine's monitor layout and maps pointer
// coordinates between a machine's local desktop and the shared global space.
package display

import (
	"fmt"
	"net/netip"
	"slices"
)

// Rect is one physical monitor in its machine's local desktop space.
type Rect struct {
	ID     uint32 `json:"id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Contains checks if a point is within this monitor
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Center returns the middle pixel of the monitor.
func (r Rect) Center() Position {
	return Position{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Position is an (x, y) pair, either local to one machine or global.
type Position struct {
	X int
	Y int
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Sub returns the offset from o to p.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Client identifies which machine a ClientDisplays entry belongs to.
// The zero value is not valid; use Self or Networked.
type Client struct {
	self bool
	addr netip.AddrPort
}

// Self is the local machine.
func Self() Client { return Client{self: true} }

// Networked is a peer observed at addr.
func Networked(addr netip.AddrPort) Client { return Client{addr: addr} }

// IsSelf reports whether c is the local machine.
func (c Client) IsSelf() bool { return c.self }

// Addr returns the peer address. It is the zero AddrPort for Self.
func (c Client) Addr() netip.AddrPort { return c.addr }

func (c Client) String() string {
	if c.self {
		return "self"
	}
	return c.addr.String()
}

// ClientDisplays is one machine's monitors ordered by id.
type ClientDisplays struct {
	Client   Client
	Displays []Rect
}

// NewClientDisplays copies displays and orders them by id.
func NewClientDisplays(client Client, displays []Rect) ClientDisplays {
	sorted := slices.Clone(displays)
	slices.SortStableFunc(sorted, func(a, b Rect) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return ClientDisplays{Client: client, Displays: sorted}
}

// Width is the machine's contribution to the flattened global width.
func (c ClientDisplays) Width() int {
	w := 0
	for _, d := range c.Displays {
		w += d.Width
	}
	return w
}

// bounds returns the left physical boundary of the leftmost display and the
// right physical boundary (exclusive) of the rightmost display.
func (c ClientDisplays) bounds() (left, right int, ok bool) {
	if len(c.Displays) == 0 {
		return 0, 0, false
	}
	left = c.Displays[0].X
	right = c.Displays[0].X + c.Displays[0].Width
	for _, d := range c.Displays[1:] {
		left = min(left, d.X)
		right = max(right, d.X+d.Width)
	}
	return left, right, true
}

// Edge represents a horizontal boundary of a machine's desktop
type Edge int

const (
	EdgeNone Edge = iota
	EdgeLeft
	EdgeRight
)

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	default:
		return "none"
	}
}
