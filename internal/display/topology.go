package display

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
)

var (
	// ErrInvalidMousePosition is returned when a position lies outside every known display.
	ErrInvalidMousePosition = errors.New("invalid mouse position")
	// ErrLocalAddressUnknown is returned by mutations that need the total order.
	ErrLocalAddressUnknown = errors.New("local address not yet known")
	// ErrNotNetworked is returned when a local entry is offered where a peer entry is required.
	ErrNotNetworked = errors.New("client displays are not networked")
	// ErrClientNotFound is returned for an index or address absent from the topology.
	ErrClientNotFound = errors.New("client not found in topology")
)

// ClientPosition is the result of resolving a global position.
type ClientPosition struct {
	Client      Client
	ClientIndex int
	DisplayID   uint32
	Position    Position // in the owning machine's local desktop space
}

// Layout is an immutable snapshot of the topology. All coordinate queries run
// on a Layout so callers never hold the topology lock while computing.
type Layout struct {
	entries []ClientDisplays
}

// Entries returns the ordered machines of the layout.
func (l Layout) Entries() []ClientDisplays {
	return l.entries
}

// SelfIndex returns the position of the local machine in the layout.
func (l Layout) SelfIndex() (int, bool) {
	for i, e := range l.entries {
		if e.Client.IsSelf() {
			return i, true
		}
	}
	return 0, false
}

// Width is the total flattened width of every known display.
func (l Layout) Width() int {
	w := 0
	for _, e := range l.entries {
		w += e.Width()
	}
	return w
}

// LocalPositionOf walks the machines left to right, accumulating display
// widths, and returns the machine, display and local coordinate that contain g.
func (l Layout) LocalPositionOf(g Position) (ClientPosition, error) {
	offset := 0
	for ci, entry := range l.entries {
		for _, d := range entry.Displays {
			if g.X >= offset && g.X < offset+d.Width {
				if g.Y < 0 || g.Y >= d.Height {
					return ClientPosition{}, fmt.Errorf("%w: %s outside display %d of %s", ErrInvalidMousePosition, g, d.ID, entry.Client)
				}
				return ClientPosition{
					Client:      entry.Client,
					ClientIndex: ci,
					DisplayID:   d.ID,
					Position:    Position{X: d.X + (g.X - offset), Y: d.Y + g.Y},
				}, nil
			}
			offset += d.Width
		}
	}
	return ClientPosition{}, fmt.Errorf("%w: %s outside global width %d", ErrInvalidMousePosition, g, offset)
}

// GlobalPositionOf maps a point on one of the local machine's displays into
// the flattened global space.
func (l Layout) GlobalPositionOf(local Position) (Position, error) {
	offset := 0
	for _, entry := range l.entries {
		if !entry.Client.IsSelf() {
			offset += entry.Width()
			continue
		}
		for _, d := range entry.Displays {
			if d.Contains(local) {
				return Position{X: offset + (local.X - d.X), Y: local.Y - d.Y}, nil
			}
			offset += d.Width
		}
		break
	}
	return Position{}, fmt.Errorf("%w: %s is not on a local display", ErrInvalidMousePosition, local)
}

// EdgeOf reports whether a local position sits on the outer boundary of the
// machine at clientIndex. An edge is only reported when a neighbour exists on
// that side.
func (l Layout) EdgeOf(local Position, clientIndex int) (Edge, error) {
	if clientIndex < 0 || clientIndex >= len(l.entries) {
		return EdgeNone, fmt.Errorf("%w: index %d", ErrClientNotFound, clientIndex)
	}
	left, right, ok := l.entries[clientIndex].bounds()
	if !ok {
		return EdgeNone, nil
	}
	if local.X <= left && clientIndex > 0 {
		return EdgeLeft, nil
	}
	if local.X >= right && clientIndex < len(l.entries)-1 {
		return EdgeRight, nil
	}
	return EdgeNone, nil
}

// MissingDisplays returns the alive peers that have no entry yet.
func (l Layout) MissingDisplays(alive []netip.AddrPort) []netip.AddrPort {
	var missing []netip.AddrPort
	for _, addr := range alive {
		if !l.has(addr) {
			missing = append(missing, addr)
		}
	}
	return missing
}

func (l Layout) has(addr netip.AddrPort) bool {
	for _, e := range l.entries {
		if !e.Client.IsSelf() && e.Client.Addr() == addr {
			return true
		}
	}
	return false
}

// Topology is the shared, lock-guarded ordered set of machines.
type Topology struct {
	mu        sync.RWMutex
	entries   []ClientDisplays
	self      netip.AddrPort
	selfKnown bool
}

// NewTopology creates a topology holding only the local machine.
func NewTopology(local []Rect) *Topology {
	return &Topology{
		entries: []ClientDisplays{NewClientDisplays(Self(), local)},
	}
}

// Layout returns a snapshot for coordinate queries.
func (t *Topology) Layout() Layout {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Layout{entries: slices.Clone(t.entries)}
}

// LocalDisplays returns the local machine's monitors.
func (t *Topology) LocalDisplays() []Rect {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Client.IsSelf() {
			return slices.Clone(e.Displays)
		}
	}
	return nil
}

// LocalAddress returns the address under which peers observe this machine.
func (t *Topology) LocalAddress() (netip.AddrPort, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.self, t.selfKnown
}

// SetLocalAddress records the local machine's observed address and re-sorts.
func (t *Topology) SetLocalAddress(addr netip.AddrPort) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.self = addr
	t.selfKnown = true
	// A peer entry under our own address is a stale echo of ourselves.
	t.entries = slices.DeleteFunc(t.entries, func(e ClientDisplays) bool {
		return !e.Client.IsSelf() && e.Client.Addr() == addr
	})
	t.sortLocked()
}

// Upsert replaces the peer entry with the same address, or appends it, then
// re-sorts. The whole entry is swapped; displays are never merged.
func (t *Topology) Upsert(entry ClientDisplays) error {
	if entry.Client.IsSelf() {
		return ErrNotNetworked
	}
	entry = NewClientDisplays(entry.Client, entry.Displays)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.selfKnown {
		return ErrLocalAddressUnknown
	}
	if entry.Client.Addr() == t.self {
		return fmt.Errorf("%w: %s is the local address", ErrNotNetworked, t.self)
	}

	replaced := false
	for i, e := range t.entries {
		if !e.Client.IsSelf() && e.Client.Addr() == entry.Client.Addr() {
			t.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		t.entries = append(t.entries, entry)
	}
	t.sortLocked()
	return nil
}

// Prune removes every peer entry whose address is not alive. The local entry
// is never removed. It returns the removed clients.
func (t *Topology) Prune(alive []netip.AddrPort) []Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Client
	t.entries = slices.DeleteFunc(t.entries, func(e ClientDisplays) bool {
		if e.Client.IsSelf() || slices.Contains(alive, e.Client.Addr()) {
			return false
		}
		removed = append(removed, e.Client)
		return true
	})
	return removed
}

// sortLocked orders entries by address; the local entry sorts under its own
// observed address.
func (t *Topology) sortLocked() {
	if !t.selfKnown {
		return
	}
	slices.SortStableFunc(t.entries, func(a, b ClientDisplays) int {
		return t.keyLocked(a).Compare(t.keyLocked(b))
	})
}

func (t *Topology) keyLocked(e ClientDisplays) netip.AddrPort {
	if e.Client.IsSelf() {
		return t.self
	}
	return e.Client.Addr()
}
