// Package pointer decides, sample by sample, whether this machine owns the
// shared pointer or is forwarding it to a peer.
package pointer

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/input"
	"github.com/bnema/seamless/internal/logger"
	"github.com/bnema/seamless/internal/network"
	"github.com/bnema/seamless/internal/protocol"
)

// ErrIndicator wraps failures to toggle the "pointer elsewhere" indicator.
var ErrIndicator = errors.New("indicator toggle failed")

var log = logger.Component("pointer")

// State is who owns the pointer from this machine's point of view
type State int

const (
	// Local means the OS cursor here is the pointer.
	Local State = iota
	// Remote means local motion is forwarded as deltas.
	Remote
)

func (s State) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

// Transport sends frames to peers.
type Transport interface {
	Send(message string) error
	SendSpecific(addr netip.AddrPort, message string) error
}

// Indicator is the lightweight "pointer has left this machine" display.
type Indicator interface {
	Show() error
	Hide() error
}

// Config tunes the controller
type Config struct {
	// EdgeNudge is how far past an edge the pointer is pushed on handoff.
	// Values below 1 are raised to 1.
	EdgeNudge int
	// RemoteSpeed multiplies local deltas while remote.
	RemoteSpeed int
	// Anchor is where the OS cursor is parked while remote. The zero value
	// selects the centre of the first local display.
	Anchor display.Position
	// EchoesInjection is set when the sample source reports injected moves
	// back. Only then is a sample equal to the last injection dropped.
	EchoesInjection bool
}

// Controller is the ownership state machine.
type Controller struct {
	cfg       Config
	topo      *display.Topology
	transport Transport
	injector  input.Injector
	indicator Indicator

	mu           sync.Mutex
	state        State
	global       display.Position
	anchor       display.Position
	lastInjected display.Position
	injected     bool
	onState      func(State)
}

// New creates a controller in the Local state.
func New(cfg Config, topo *display.Topology, transport Transport, injector input.Injector, indicator Indicator) *Controller {
	if cfg.RemoteSpeed < 1 {
		cfg.RemoteSpeed = 1
	}
	if cfg.EdgeNudge < 1 {
		cfg.EdgeNudge = 1
	}
	anchor := cfg.Anchor
	if anchor == (display.Position{}) {
		if local := topo.LocalDisplays(); len(local) > 0 {
			anchor = local[0].Center()
		}
	}
	return &Controller{
		cfg:       cfg,
		topo:      topo,
		transport: transport,
		injector:  injector,
		indicator: indicator,
		anchor:    anchor,
	}
}

// OnStateChange registers a callback for ownership transitions.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current ownership state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Position returns the last known global position
func (c *Controller) Position() display.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global
}

// Anchor returns where the cursor is parked while remote
func (c *Controller) Anchor() display.Position {
	return c.anchor
}

// effects are collected under the lock and performed after it is released.
type effects struct {
	hide, show bool
	moveTo     *display.Position
	emit       *display.Position
	changed    bool
	state      State
	onState    func(State)
}

// HandleLocalSample processes one absolute position of the local OS cursor.
// Samples that map nowhere are ignored.
func (c *Controller) HandleLocalSample(p display.Position) error {
	layout := c.topo.Layout()

	c.mu.Lock()
	var fx effects
	switch c.state {
	case Local:
		fx = c.localSampleLocked(layout, p)
	case Remote:
		fx = c.remoteSampleLocked(layout, p)
	}
	fx.state, fx.onState = c.state, c.onState
	c.mu.Unlock()

	return c.apply(fx)
}

func (c *Controller) localSampleLocked(layout display.Layout, p display.Position) effects {
	var fx effects
	if c.injected && p == c.lastInjected {
		c.injected = false
		return fx
	}
	c.injected = false

	g, err := layout.GlobalPositionOf(p)
	if err != nil {
		log.Debug("Ignoring local sample", "pos", p, "err", err)
		return fx
	}

	if next, ok := c.crossingLocked(layout, p, g); ok {
		log.Info("Pointer left this machine", "global", next)
		c.state = Remote
		c.global = next
		anchor := c.anchor
		c.markInjectedLocked(anchor)
		fx.show, fx.moveTo, fx.emit, fx.changed = true, &anchor, &next, true
		return fx
	}

	c.global = g
	fx.emit = &g
	return fx
}

// crossingLocked reports the nudged global position when p sits on an edge
// with a networked neighbour behind it.
func (c *Controller) crossingLocked(layout display.Layout, p, g display.Position) (display.Position, bool) {
	self, ok := layout.SelfIndex()
	if !ok {
		return display.Position{}, false
	}

	edge, err := layout.EdgeOf(p, self)
	if err != nil {
		return display.Position{}, false
	}
	if edge == display.EdgeNone {
		// The OS clamps the cursor to the last pixel, so probe one ahead.
		edge, err = layout.EdgeOf(display.Position{X: p.X + 1, Y: p.Y}, self)
		if err != nil || edge != display.EdgeRight {
			return display.Position{}, false
		}
	}

	next := g
	switch edge {
	case display.EdgeLeft:
		next.X -= c.cfg.EdgeNudge
	case display.EdgeRight:
		next.X += c.cfg.EdgeNudge
	}
	target, err := layout.LocalPositionOf(next)
	if err != nil || target.Client.IsSelf() {
		return display.Position{}, false
	}
	return next, true
}

func (c *Controller) remoteSampleLocked(layout display.Layout, p display.Position) effects {
	var fx effects
	delta := p.Sub(c.anchor)
	if delta == (display.Position{}) {
		return fx
	}
	delta.X *= c.cfg.RemoteSpeed
	delta.Y *= c.cfg.RemoteSpeed

	anchor := c.anchor
	next, target, ok := c.resolveMoveLocked(layout, delta)
	if !ok {
		c.markInjectedLocked(anchor)
		fx.moveTo = &anchor
		return fx
	}

	c.global = next
	fx.emit = &next
	if target.Client.IsSelf() {
		log.Info("Pointer returned to this machine", "local", target.Position)
		c.state = Local
		local := target.Position
		c.markInjectedLocked(local)
		fx.hide, fx.moveTo, fx.changed = true, &local, true
		return fx
	}

	c.markInjectedLocked(anchor)
	fx.moveTo = &anchor
	return fx
}

// resolveMoveLocked applies delta to the global position. A move that leaves
// every display keeps whichever axis stays valid so the pointer slides
// along edges.
func (c *Controller) resolveMoveLocked(layout display.Layout, delta display.Position) (display.Position, display.ClientPosition, bool) {
	candidates := []display.Position{
		c.global.Add(delta),
		c.global.Add(display.Position{X: delta.X}),
		c.global.Add(display.Position{Y: delta.Y}),
	}
	for _, next := range candidates {
		if next == c.global {
			continue
		}
		if target, err := layout.LocalPositionOf(next); err == nil {
			return next, target, true
		}
	}
	return display.Position{}, display.ClientPosition{}, false
}

func (c *Controller) markInjectedLocked(p display.Position) {
	c.lastInjected = p
	c.injected = c.cfg.EchoesInjection
}

// HandleRemotePosition applies a position broadcast by a peer. The latest
// position always wins.
func (c *Controller) HandleRemotePosition(pos display.Position) error {
	layout := c.topo.Layout()
	target, err := layout.LocalPositionOf(pos)
	if err != nil {
		log.Debug("Ignoring remote position", "pos", pos, "err", err)
		return nil
	}

	c.mu.Lock()
	var fx effects
	c.global = pos
	if target.Client.IsSelf() {
		if c.state == Remote {
			c.state = Local
			fx.hide, fx.changed = true, true
		}
		local := target.Position
		c.markInjectedLocked(local)
		fx.moveTo = &local
	} else if c.state == Local {
		c.state = Remote
		anchor := c.anchor
		c.markInjectedLocked(anchor)
		fx.show, fx.moveTo, fx.changed = true, &anchor, true
	}
	fx.state, fx.onState = c.state, c.onState
	c.mu.Unlock()

	return c.apply(fx)
}

func (c *Controller) apply(fx effects) error {
	var errs []error
	if fx.hide {
		if err := c.indicator.Hide(); err != nil {
			errs = append(errs, fmt.Errorf("%w: hide: %w", ErrIndicator, err))
		}
	}
	if fx.moveTo != nil {
		if err := c.injector.MoveTo(*fx.moveTo); err != nil {
			errs = append(errs, fmt.Errorf("move cursor: %w", err))
		}
	}
	if fx.show {
		if err := c.indicator.Show(); err != nil {
			errs = append(errs, fmt.Errorf("%w: show: %w", ErrIndicator, err))
		}
	}
	if fx.emit != nil {
		frame := protocol.MustSerialize(protocol.PointerPosition{X: fx.emit.X, Y: fx.emit.Y})
		if err := c.transport.Send(frame); err != nil && !errors.Is(err, network.ErrNoPeers) {
			errs = append(errs, err)
		}
	}
	if fx.changed && fx.onState != nil {
		fx.onState(fx.state)
	}
	return errors.Join(errs...)
}

// Reclaim brings the pointer back to the anchor on this machine. The
// broadcast position makes whichever peer held it give it up.
func (c *Controller) Reclaim() error {
	layout := c.topo.Layout()

	c.mu.Lock()
	if c.state == Local {
		c.mu.Unlock()
		return nil
	}
	anchor := c.anchor
	g, err := layout.GlobalPositionOf(anchor)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reclaim: %w", err)
	}
	log.Info("Reclaiming pointer", "global", g)
	c.state = Local
	c.global = g
	c.markInjectedLocked(anchor)
	fx := effects{hide: true, moveTo: &anchor, emit: &g, changed: true, state: Local, onState: c.onState}
	c.mu.Unlock()

	return c.apply(fx)
}

// HandleDisplays records a peer's announced monitors.
func (c *Controller) HandleDisplays(src netip.AddrPort, displays []display.Rect) error {
	if err := c.topo.Upsert(display.NewClientDisplays(display.Networked(src), displays)); err != nil {
		return fmt.Errorf("topology from %s: %w", src, err)
	}
	log.Debug("Updated peer displays", "peer", src, "count", len(displays))
	return nil
}

// HandleDisplaysRequest answers a request for our monitors, but only when the
// request names the address we are observed under.
func (c *Controller) HandleDisplaysRequest(src netip.AddrPort, req protocol.DisplaysRequest) error {
	self, ok := c.topo.LocalAddress()
	if !ok || self.Addr() != req.Addr {
		log.Debug("Ignoring displays request for another host", "from", src, "addr", req.Addr)
		return nil
	}
	frame, err := protocol.Serialize(protocol.DisplayAnnouncement{Displays: c.topo.LocalDisplays()})
	if err != nil {
		return err
	}
	return c.transport.SendSpecific(src, frame)
}

// AnnounceDisplays sends our monitors to every peer.
func (c *Controller) AnnounceDisplays() error {
	frame, err := protocol.Serialize(protocol.DisplayAnnouncement{Displays: c.topo.LocalDisplays()})
	if err != nil {
		return err
	}
	return c.transport.Send(frame)
}

// RequestDisplays asks the peer at addr for its monitors.
func (c *Controller) RequestDisplays(addr netip.AddrPort) error {
	frame := protocol.MustSerialize(protocol.DisplaysRequest{Addr: addr.Addr()})
	return c.transport.SendSpecific(addr, frame)
}
