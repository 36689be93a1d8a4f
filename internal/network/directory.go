package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bnema/seamless/internal/config"
	"github.com/bnema/seamless/internal/logger"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/libp2p/go-reuseport"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPeerNotFound is returned by SendSpecific for an address that is not an alive peer
	ErrPeerNotFound = errors.New("peer not found")
	// ErrNoPeers is returned by Send when there is nobody to send to
	ErrNoPeers = errors.New("no peers")
)

const maxDatagram = 64 * 1024

var log = logger.Component("peers")

// Config holds the directory's addresses and timings.
type Config struct {
	Group            netip.Addr
	DiscoveryPort    int
	AppPort          int
	Interface        string
	AnnounceInterval time.Duration
	PeerDecay        time.Duration
	PeerSweep        time.Duration
	Clock            mclock.Clock
}

// ConfigFrom builds a directory config from the application config.
func ConfigFrom(c *config.Config) (Config, error) {
	group, err := netip.ParseAddr(c.Network.MulticastGroup)
	if err != nil {
		return Config{}, fmt.Errorf("invalid multicast group: %w", err)
	}
	return Config{
		Group:            group,
		DiscoveryPort:    c.Network.DiscoveryPort,
		AppPort:          c.Network.AppPort,
		Interface:        c.Network.Interface,
		AnnounceInterval: c.Timing.AnnounceInterval,
		PeerDecay:        c.Timing.PeerDecay,
		PeerSweep:        c.Timing.PeerSweep,
	}, nil
}

// Peer is a remote node seen on the discovery group.
type Peer struct {
	// Addr is the source of the peer's announcements.
	Addr netip.AddrPort
	// Unicast is where the peer receives application frames.
	Unicast  netip.AddrPort
	LastSeen mclock.AbsTime
}

// Directory owns both sockets and the peer set.
type Directory struct {
	cfg   Config
	id    *Identity
	clock mclock.Clock

	discovery *net.UDPConn
	groupAddr *net.UDPAddr
	unicast   *net.UDPConn

	mu        sync.Mutex
	peers     map[netip.AddrPort]mclock.AbsTime
	self      netip.AddrPort
	selfKnown bool

	cbMu    sync.RWMutex
	onPeers func([]Peer)
	onSelf  func(netip.AddrPort)

	closeOnce sync.Once
}

// New binds the discovery socket, joins the group and binds the unicast
// socket. Any failure here is fatal to the caller.
func New(cfg Config, id *Identity) (*Directory, error) {
	if !cfg.Group.Is4() || !cfg.Group.IsMulticast() {
		return nil, fmt.Errorf("group %s is not an IPv4 multicast address", cfg.Group)
	}

	pc, err := reuseport.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", cfg.DiscoveryPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery port %d: %w", cfg.DiscoveryPort, err)
	}
	discovery, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("discovery socket is %T, not UDP", pc)
	}

	if err := joinGroup(discovery, cfg.Group, cfg.Interface); err != nil {
		discovery.Close()
		return nil, err
	}

	unicast, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.AppPort})
	if err != nil {
		discovery.Close()
		return nil, fmt.Errorf("failed to bind unicast port %d: %w", cfg.AppPort, err)
	}

	groupAddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(cfg.Group, uint16(cfg.DiscoveryPort))) //nolint:gosec // port validated by config
	return newDirectory(cfg, id, discovery, groupAddr, unicast), nil
}

func joinGroup(conn *net.UDPConn, group netip.Addr, ifname string) error {
	p := ipv4.NewPacketConn(conn)

	var ifi *net.Interface
	if ifname != "" {
		var err error
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return fmt.Errorf("unknown interface %q: %w", ifname, err)
		}
		if err := p.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("failed to select multicast interface %s: %w", ifname, err)
		}
	}

	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group.AsSlice()}); err != nil {
		return fmt.Errorf("failed to join group %s: %w", group, err)
	}
	// Peers on the same host must see each other's announcements
	if err := p.SetMulticastLoopback(true); err != nil {
		return fmt.Errorf("failed to enable multicast loopback: %w", err)
	}
	if err := p.SetMulticastTTL(1); err != nil {
		logger.Warnf("Failed to set multicast TTL: %v", err)
	}
	return nil
}

// newDirectory wires already bound sockets. Announcements are written to
// groupAddr.
func newDirectory(cfg Config, id *Identity, discovery *net.UDPConn, groupAddr *net.UDPAddr, unicast *net.UDPConn) *Directory {
	clock := cfg.Clock
	if clock == nil {
		clock = mclock.System{}
	}
	return &Directory{
		cfg:       cfg,
		id:        id,
		clock:     clock,
		discovery: discovery,
		groupAddr: groupAddr,
		unicast:   unicast,
		peers:     make(map[netip.AddrPort]mclock.AbsTime),
	}
}

// OnPeersChanged registers the callback receiving the alive peer snapshot
// after every discovery datagram and sweep.
func (d *Directory) OnPeersChanged(fn func([]Peer)) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onPeers = fn
}

// OnSelfAddress registers the callback fired when the observed self address
// is learned or changes.
func (d *Directory) OnSelfAddress(fn func(netip.AddrPort)) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onSelf = fn
}

// UnicastAddr returns the application address of the host at addr.
func (d *Directory) UnicastAddr(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr(), uint16(d.cfg.AppPort)) //nolint:gosec // port validated by config
}

// SelfAddress returns the address our own announcements arrive from.
func (d *Directory) SelfAddress() (netip.AddrPort, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.self, d.selfKnown
}

// LocalAddr returns the bound unicast address.
func (d *Directory) LocalAddr() netip.AddrPort {
	return d.unicast.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Identity returns the directory's identity
func (d *Directory) Identity() *Identity {
	return d.id
}

// Alive returns the peers seen within the decay threshold, ordered by address.
func (d *Directory) Alive() []Peer {
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aliveLocked(now)
}

func (d *Directory) aliveLocked(now mclock.AbsTime) []Peer {
	peers := make([]Peer, 0, len(d.peers))
	for addr, seen := range d.peers {
		if time.Duration(now-seen) > d.cfg.PeerDecay {
			continue
		}
		peers = append(peers, Peer{Addr: addr, Unicast: d.UnicastAddr(addr), LastSeen: seen})
	}
	slices.SortFunc(peers, func(a, b Peer) int { return a.Addr.Compare(b.Addr) })
	return peers
}

// BroadcastSelf announces the identity to the group every interval.
// Failures are logged and the loop continues.
func (d *Directory) BroadcastSelf(ctx context.Context) error {
	payload := d.id.Payload()
	for {
		if _, err := d.discovery.WriteToUDP(payload, d.groupAddr); err != nil {
			log.Warn("Failed to announce", "group", d.groupAddr, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(d.cfg.AnnounceInterval):
		}
	}
}

// ListenDiscovery reads announcements until ctx is done.
func (d *Directory) ListenDiscovery(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.discovery.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := d.discovery.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("Discovery read failed", "err", err)
			continue
		}
		d.handleDiscovery(buf[:n], src)
	}
}

func (d *Directory) handleDiscovery(payload []byte, src netip.AddrPort) {
	src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())

	if d.id.Is(payload) {
		d.mu.Lock()
		changed := !d.selfKnown || d.self != src
		d.self, d.selfKnown = src, true
		// An entry under our own address was an echo of ourselves
		delete(d.peers, src)
		d.mu.Unlock()

		if changed {
			log.Info("Learned own address", "addr", src)
			d.cbMu.RLock()
			fn := d.onSelf
			d.cbMu.RUnlock()
			if fn != nil {
				fn(src)
			}
		}
		return
	}

	if _, ok := parseToken(payload); !ok {
		log.Debug("Ignoring foreign discovery datagram", "src", src, "len", len(payload))
		return
	}

	now := d.clock.Now()
	d.mu.Lock()
	if d.selfKnown && src == d.self {
		d.mu.Unlock()
		return
	}
	if _, known := d.peers[src]; !known {
		log.Info("Discovered peer", "addr", src)
	}
	d.peers[src] = now
	alive := d.aliveLocked(now)
	d.mu.Unlock()

	d.notifyPeers(alive)
}

// Sweep prunes decayed peers every sweep interval.
func (d *Directory) Sweep(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(d.cfg.PeerSweep):
			d.sweep()
		}
	}
}

func (d *Directory) sweep() {
	now := d.clock.Now()
	d.mu.Lock()
	for addr, seen := range d.peers {
		if time.Duration(now-seen) > d.cfg.PeerDecay {
			log.Info("Peer timed out", "addr", addr)
			delete(d.peers, addr)
		}
	}
	alive := d.aliveLocked(now)
	d.mu.Unlock()

	d.notifyPeers(alive)
}

func (d *Directory) notifyPeers(alive []Peer) {
	d.cbMu.RLock()
	fn := d.onPeers
	d.cbMu.RUnlock()
	if fn != nil {
		fn(alive)
	}
}

// Receive reads application frames until ctx is done. Datagrams that are
// not valid UTF-8 are dropped.
func (d *Directory) Receive(ctx context.Context, fn func(text string, src netip.AddrPort)) error {
	stop := context.AfterFunc(ctx, func() { d.unicast.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := d.unicast.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("Unicast read failed", "err", err)
			continue
		}
		if !utf8.Valid(buf[:n]) {
			log.Debug("Dropping datagram with invalid UTF-8", "src", src)
			continue
		}
		fn(string(buf[:n]), netip.AddrPortFrom(src.Addr().Unmap(), src.Port()))
	}
}

// Send writes message to every alive peer. A failure for one peer does not
// stop the others; all failures are returned joined.
func (d *Directory) Send(message string) error {
	peers := d.Alive()
	if len(peers) == 0 {
		return ErrNoPeers
	}

	var errs []error
	for _, p := range peers {
		if _, err := d.unicast.WriteToUDPAddrPort([]byte(message), p.Unicast); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", p.Unicast, err))
		}
	}
	return errors.Join(errs...)
}

// SendSpecific writes message to one alive peer, addressed by its unicast
// address.
func (d *Directory) SendSpecific(addr netip.AddrPort, message string) error {
	found := slices.ContainsFunc(d.Alive(), func(p Peer) bool { return p.Unicast == addr })
	if !found {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, addr)
	}
	if _, err := d.unicast.WriteToUDPAddrPort([]byte(message), addr); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

// Run runs the announcement, discovery, sweep and receive loops until ctx is
// done or one of them fails.
func (d *Directory) Run(ctx context.Context, fn func(text string, src netip.AddrPort)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.BroadcastSelf(ctx) })
	g.Go(func() error { return d.ListenDiscovery(ctx) })
	g.Go(func() error { return d.Sweep(ctx) })
	g.Go(func() error { return d.Receive(ctx, fn) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases both sockets.
func (d *Directory) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = errors.Join(d.discovery.Close(), d.unicast.Close())
	})
	return err
}
