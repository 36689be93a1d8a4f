// Package node assembles a running seamless instance: peer directory,
// display topology, pointer controller, key trackers, input capture and
// injection, and the local IPC socket.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/input"
	"github.com/bnema/seamless/internal/ipc"
	"github.com/bnema/seamless/internal/logger"
	"github.com/bnema/seamless/internal/mdns"
	"github.com/bnema/seamless/internal/network"
	"github.com/bnema/seamless/internal/pointer"
	"github.com/bnema/seamless/internal/protocol"
	"github.com/ethereum/go-ethereum/common/mclock"
	"golang.org/x/sync/errgroup"
)

var log = logger.Component("node")

// directory is the part of *network.Directory the node drives.
type directory interface {
	pointer.Transport
	Identity() *network.Identity
	Alive() []network.Peer
	UnicastAddr(addr netip.AddrPort) netip.AddrPort
	OnPeersChanged(fn func([]network.Peer))
	OnSelfAddress(fn func(netip.AddrPort))
	Run(ctx context.Context, fn func(text string, src netip.AddrPort)) error
	Close() error
}

// Node is one peer of the shared desktop.
type Node struct {
	cfg      *config.Config
	clock    mclock.Clock
	dir      directory
	topo     *display.Topology
	ctrl     *pointer.Controller
	source   input.Source
	injector input.Injector
	ipc      *ipc.SocketServer

	// outbound re-sends keys typed here while another machine has the
	// pointer; inbound releases keys a silent peer left pressed.
	outbound *input.HeldKeys
	inbound  *input.HeldKeys
}

type parts struct {
	dir       directory
	displays  []display.Rect
	source    input.Source
	injector  input.Injector
	indicator pointer.Indicator
	clock     mclock.Clock
}

// New queries the local monitors, binds the network sockets and prepares
// input. Failures here abort startup; input devices that cannot be opened
// degrade to capture-less or injection-less operation.
func New(cfg *config.Config) (*Node, error) {
	displays, err := display.QueryLocal(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to query local monitors: %w", err)
	}

	netCfg, err := network.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	dir, err := network.New(netCfg, network.NewIdentity())
	if err != nil {
		return nil, err
	}

	cursor := input.NewCursor(displays)

	var injector input.Injector = input.NewNopInjector(cursor)
	if cfg.Input.Inject {
		u, err := input.NewUinputInjector(cursor)
		if err != nil {
			log.Warn("Input injection unavailable, running without it", "err", err)
		} else {
			injector = u
		}
	}

	var source input.Source
	if cfg.Input.Capture {
		src, err := input.NewEvdevSource(cursor, cfg.Input.MouseDevice, cfg.Input.KeyboardDevice)
		if err != nil {
			log.Warn("Input capture unavailable, this machine can only receive", "err", err)
		} else {
			source = src
		}
	}

	n := assemble(cfg, parts{
		dir:       dir,
		displays:  displays,
		source:    source,
		injector:  injector,
		indicator: ipc.NewOverlayIndicator(cfg.IPC.OverlaySocketPath),
		clock:     mclock.System{},
	})
	n.ipc = ipc.NewSocketServer(cfg.IPC.SocketPath, ipc.Handlers{
		Status:  func() (ipc.Status, error) { return n.Status(), nil },
		Release: n.Release,
	})
	return n, nil
}

func assemble(cfg *config.Config, p parts) *Node {
	n := &Node{
		cfg:      cfg,
		clock:    p.clock,
		dir:      p.dir,
		topo:     display.NewTopology(p.displays),
		source:   p.source,
		injector: p.injector,
	}

	n.ctrl = pointer.New(pointer.Config{
		EdgeNudge:       cfg.Pointer.EdgeNudge,
		RemoteSpeed:     cfg.Pointer.RemoteSpeed,
		Anchor:          display.Position{X: cfg.Pointer.AnchorX, Y: cfg.Pointer.AnchorY},
		EchoesInjection: input.EchoesInjection(p.source),
	}, n.topo, p.dir, p.injector, p.indicator)

	n.outbound = input.NewHeldKeys(n.sendKey,
		input.WithClock(p.clock),
		input.WithRefresh(cfg.Timing.KeyRefresh),
		input.WithoutExpiry(),
	)
	n.inbound = input.NewHeldKeys(n.injectKey,
		input.WithClock(p.clock),
		input.WithRefresh(cfg.Timing.KeyRefresh),
		input.WithExpiry(cfg.Timing.KeyExpiry),
		input.WithoutResend(),
	)

	p.dir.OnSelfAddress(n.onSelfAddress)
	p.dir.OnPeersChanged(n.onPeersChanged)
	n.ctrl.OnStateChange(n.onStateChange)
	return n
}

// Run drives every loop until ctx is done. After a successful start nothing
// short of cancellation or a closed socket stops it.
func (n *Node) Run(ctx context.Context) error {
	defer n.shutdown()

	if n.cfg.MDNS.Enabled {
		adv, err := mdns.Advertise(mdns.Config{
			Service: n.cfg.MDNS.Service,
			Port:    n.cfg.Network.AppPort,
			Token:   n.dir.Identity().Token(),
		})
		if err != nil {
			log.Warn("mDNS advertisement failed", "err", err)
		} else {
			defer adv.Stop()
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.dir.Run(ctx, n.Dispatch) })
	g.Go(func() error { return ignoreCanceled(n.outbound.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(n.inbound.Run(ctx)) })
	if n.source != nil {
		g.Go(func() error {
			err := n.source.Run(ctx, input.Events{Pointer: n.onLocalPointer, Key: n.onLocalKey})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Input capture stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		n.handleReleaseSignals(ctx)
		return nil
	})
	if n.ipc != nil {
		g.Go(func() error {
			if err := n.ipc.Serve(ctx); err != nil {
				log.Warn("Status socket unavailable", "err", err)
			}
			return nil
		})
	}

	log.Info("Node running", "identity", n.dir.Identity().Token(), "displays", len(n.topo.LocalDisplays()))
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Node) shutdown() {
	// Never leave a key stuck on this machine
	n.inbound.ReleaseAll()
	if n.source != nil {
		if err := n.source.SetGrab(false); err != nil {
			log.Debug("Release grab on shutdown", "err", err)
		}
	}
	if err := n.injector.Close(); err != nil {
		log.Warn("Closing injector", "err", err)
	}
	if err := n.dir.Close(); err != nil {
		log.Warn("Closing sockets", "err", err)
	}
}

// Dispatch handles one application frame. Nothing a peer sends can make it
// fail; bad frames are logged and dropped.
func (n *Node) Dispatch(text string, src netip.AddrPort) {
	ev, err := protocol.Parse(text)
	if err != nil {
		log.Debug("Dropping frame", "src", src, "err", err)
		return
	}

	switch ev := ev.(type) {
	case protocol.PointerPosition:
		err = n.ctrl.HandleRemotePosition(ev.Position())
	case protocol.DisplayAnnouncement:
		err = n.ctrl.HandleDisplays(src, ev.Displays)
	case protocol.DisplaysRequest:
		err = n.ctrl.HandleDisplaysRequest(src, ev)
	case protocol.KeyEvent:
		n.onRemoteKey(ev.Input)
	}
	if err != nil {
		log.Debug("Frame not applied", "src", src, "frame", text, "err", err)
	}
}

func (n *Node) onRemoteKey(in input.KeyInput) {
	// Downs only land where the pointer is; Ups always land so nothing sticks
	if in.Direction == input.Down && n.ctrl.State() != pointer.Local {
		return
	}
	n.inbound.OnKeyEvent(in)
}

func (n *Node) onLocalPointer(p display.Position) {
	if err := n.ctrl.HandleLocalSample(p); err != nil {
		log.Warn("Pointer sample", "err", err)
	}
}

func (n *Node) onLocalKey(in input.KeyInput) {
	if n.ctrl.State() == pointer.Remote || (in.Direction == input.Up && n.outbound.Holds(in.Key)) {
		n.outbound.OnKeyEvent(in)
	}
}

func (n *Node) sendKey(in input.KeyInput) {
	frame := protocol.MustSerialize(protocol.KeyEvent{Input: in})
	if err := n.dir.Send(frame); err != nil && !errors.Is(err, network.ErrNoPeers) {
		log.Warn("Sending key", "key", in, "err", err)
	}
}

func (n *Node) injectKey(in input.KeyInput) {
	if err := n.injector.Key(in); err != nil {
		log.Warn("Injecting key", "key", in, "err", err)
	}
}

func (n *Node) onSelfAddress(addr netip.AddrPort) {
	unicast := n.dir.UnicastAddr(addr)
	log.Info("Learned own address", "discovery", addr, "unicast", unicast)
	n.topo.SetLocalAddress(unicast)

	if err := n.ctrl.AnnounceDisplays(); err != nil && !errors.Is(err, network.ErrNoPeers) {
		log.Warn("Announcing displays", "err", err)
	}
	n.requestMissing(n.dir.Alive())
}

func (n *Node) onPeersChanged(peers []network.Peer) {
	alive := unicastAddrs(peers)
	for _, c := range n.topo.Prune(alive) {
		log.Info("Peer left the layout", "peer", c)
	}
	n.requestMissing(peers)
}

func (n *Node) requestMissing(peers []network.Peer) {
	if _, ok := n.topo.LocalAddress(); !ok {
		return
	}
	for _, addr := range n.topo.Layout().MissingDisplays(unicastAddrs(peers)) {
		if err := n.ctrl.RequestDisplays(addr); err != nil {
			log.Debug("Requesting displays", "peer", addr, "err", err)
		}
	}
}

func unicastAddrs(peers []network.Peer) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Unicast)
	}
	return out
}

func (n *Node) onStateChange(s pointer.State) {
	log.Debug("Pointer ownership changed", "state", s)
	if n.source == nil {
		return
	}
	if err := n.source.SetGrab(s == pointer.Remote); err != nil {
		log.Warn("Toggling input grab", "err", err)
	}
}

// Status reports identity, ownership, peers and layout.
func (n *Node) Status() ipc.Status {
	pos := n.ctrl.Position()
	st := ipc.Status{
		Identity: n.dir.Identity().Token(),
		State:    n.ctrl.State().String(),
		X:        pos.X,
		Y:        pos.Y,
	}
	self, selfKnown := n.topo.LocalAddress()
	if selfKnown {
		st.Address = self.String()
	}

	now := n.clock.Now()
	for _, p := range n.dir.Alive() {
		st.Peers = append(st.Peers, ipc.PeerStatus{
			Addr:       p.Addr.String(),
			Unicast:    p.Unicast.String(),
			LastSeenMs: time.Duration(now - p.LastSeen).Milliseconds(),
		})
	}
	for _, e := range n.topo.Layout().Entries() {
		name := e.Client.String()
		if e.Client.IsSelf() && selfKnown {
			name = self.String()
		}
		st.Layout = append(st.Layout, ipc.ClientStatus{
			Client:   name,
			Self:     e.Client.IsSelf(),
			Displays: e.Displays,
		})
	}
	for _, k := range n.outbound.Held() {
		st.HeldKeys = append(st.HeldKeys, k.String())
	}
	return st
}
