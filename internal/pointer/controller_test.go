package pointer

import (
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/input"
	"github.com/bnema/seamless/internal/network"
	"github.com/bnema/seamless/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrLeft  = netip.MustParseAddrPort("10.0.0.1:47771")
	addrSelf  = netip.MustParseAddrPort("10.0.0.2:47771")
	addrRight = netip.MustParseAddrPort("10.0.0.3:47771")
)

type sent struct {
	to    netip.AddrPort // zero for broadcast
	frame string
}

type fakeTransport struct {
	mu      sync.Mutex
	frames  []sent
	sendErr error
}

func (f *fakeTransport) Send(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, sent{frame: message})
	return nil
}

func (f *fakeTransport) SendSpecific(addr netip.AddrPort, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sent{to: addr, frame: message})
	return nil
}

func (f *fakeTransport) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.frames
	f.frames = nil
	return out
}

type fakeIndicator struct {
	visible bool
	calls   []string
	err     error
}

func (f *fakeIndicator) Show() error {
	f.calls = append(f.calls, "show")
	f.visible = true
	return f.err
}

func (f *fakeIndicator) Hide() error {
	f.calls = append(f.calls, "hide")
	f.visible = false
	return f.err
}

type harness struct {
	ctrl      *Controller
	topo      *display.Topology
	transport *fakeTransport
	injector  *input.NopInjector
	indicator *fakeIndicator
	states    []State
}

func fullHD() []display.Rect {
	return []display.Rect{{ID: 0, Width: 1920, Height: 1080}}
}

// newHarness lays out left | self | right (when withRight) at 1920x1080 each.
func newHarness(t *testing.T, cfg Config, withRight bool) *harness {
	t.Helper()
	topo := display.NewTopology(fullHD())
	topo.SetLocalAddress(addrSelf)
	require.NoError(t, topo.Upsert(display.NewClientDisplays(display.Networked(addrLeft), fullHD())))
	if withRight {
		require.NoError(t, topo.Upsert(display.NewClientDisplays(display.Networked(addrRight), fullHD())))
	}

	h := &harness{
		topo:      topo,
		transport: &fakeTransport{},
		injector:  input.NewNopInjector(nil),
		indicator: &fakeIndicator{},
	}
	h.ctrl = New(cfg, topo, h.transport, h.injector, h.indicator)
	h.ctrl.OnStateChange(func(s State) { h.states = append(h.states, s) })
	return h
}

func frames(ss []sent) []string {
	var out []string
	for _, s := range ss {
		out = append(out, s.frame)
	}
	return out
}

func TestLocalMovementIsBroadcast(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)

	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 100, Y: 100}))
	assert.Equal(t, []string{"M2020|100"}, frames(h.transport.take()))
	assert.Equal(t, Local, h.ctrl.State())
	assert.Equal(t, display.Position{X: 2020, Y: 100}, h.ctrl.Position())

	// a sample outside every local display is ignored
	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 5000, Y: 100}))
	assert.Empty(t, h.transport.take())
}

func TestHandoffRightAndBack(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5, EchoesInjection: true}, true)
	anchor := display.Position{X: 960, Y: 540}
	assert.Equal(t, anchor, h.ctrl.Anchor())

	// the OS clamps to x=1919, the probe one pixel ahead finds the right edge
	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1919, Y: 500}))
	assert.Equal(t, Remote, h.ctrl.State())
	assert.Equal(t, []string{"M3844|500"}, frames(h.transport.take()))
	assert.Equal(t, []display.Position{anchor}, h.injector.Moves())
	assert.True(t, h.indicator.visible)
	assert.Equal(t, []State{Remote}, h.states)

	// deltas relative to the anchor move the global pointer
	require.NoError(t, h.ctrl.HandleLocalSample(anchor.Add(display.Position{X: 10, Y: 5})))
	assert.Equal(t, []string{"M3854|505"}, frames(h.transport.take()))
	assert.Equal(t, display.Position{X: 3854, Y: 505}, h.ctrl.Position())
	assert.Equal(t, anchor, h.injector.Moves()[1], "cursor is re-centred every tick")

	// a zero delta does nothing
	require.NoError(t, h.ctrl.HandleLocalSample(anchor))
	assert.Empty(t, h.transport.take())

	// moving back left resolves to this machine again
	require.NoError(t, h.ctrl.HandleLocalSample(anchor.Add(display.Position{X: -40})))
	assert.Equal(t, Local, h.ctrl.State())
	assert.Equal(t, []string{"M3814|505"}, frames(h.transport.take()))
	moves := h.injector.Moves()
	assert.Equal(t, display.Position{X: 1894, Y: 505}, moves[len(moves)-1])
	assert.False(t, h.indicator.visible)
	assert.Equal(t, []string{"show", "hide"}, h.indicator.calls)
	assert.Equal(t, []State{Remote, Local}, h.states)

	// the injected position echoing back is not re-broadcast
	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1894, Y: 505}))
	assert.Empty(t, h.transport.take())
	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1890, Y: 505}))
	assert.Equal(t, []string{"M3810|505"}, frames(h.transport.take()))
}

func TestHandoffLeft(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)

	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 0, Y: 300}))
	assert.Equal(t, Remote, h.ctrl.State())
	assert.Equal(t, []string{"M1915|300"}, frames(h.transport.take()))
}

func TestEdgeNudgeBelowOneIsRaised(t *testing.T) {
	tests := []struct {
		name   string
		nudge  int
		sample display.Position
		want   string
	}{
		{name: "zero right", nudge: 0, sample: display.Position{X: 1919, Y: 500}, want: "M3840|500"},
		{name: "zero left", nudge: 0, sample: display.Position{X: 0, Y: 500}, want: "M1919|500"},
		{name: "negative right", nudge: -5, sample: display.Position{X: 1919, Y: 500}, want: "M3840|500"},
		{name: "negative left", nudge: -5, sample: display.Position{X: 0, Y: 500}, want: "M1919|500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{EdgeNudge: tt.nudge}, true)

			require.NoError(t, h.ctrl.HandleLocalSample(tt.sample))
			assert.Equal(t, Remote, h.ctrl.State())
			assert.Equal(t, []string{tt.want}, frames(h.transport.take()))
		})
	}
}

func TestSampleAtInjectedPosition(t *testing.T) {
	tests := []struct {
		name       string
		echoes     bool
		wantState  State
		wantFrames []string
	}{
		{name: "source without echo", echoes: false, wantState: Remote, wantFrames: []string{"M3844|500"}},
		{name: "echoing source", echoes: true, wantState: Local, wantFrames: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{EdgeNudge: 5, EchoesInjection: tt.echoes}, true)

			// a peer lands the pointer on our right edge
			require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 3839, Y: 500}))
			require.Equal(t, []display.Position{{X: 1919, Y: 500}}, h.injector.Moves())

			// the user keeps pushing right
			require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1919, Y: 500}))
			assert.Equal(t, tt.wantState, h.ctrl.State())
			assert.Equal(t, tt.wantFrames, frames(h.transport.take()))
		})
	}
}

func TestNoHandoffWithoutNeighbour(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, false)

	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1919, Y: 500}))
	assert.Equal(t, Local, h.ctrl.State())
	assert.Equal(t, []string{"M3839|500"}, frames(h.transport.take()))
	assert.False(t, h.indicator.visible)
}

func TestRemoteSpeed(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5, RemoteSpeed: 2}, true)
	require.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 1919, Y: 500}))
	h.transport.take()

	require.NoError(t, h.ctrl.HandleLocalSample(h.ctrl.Anchor().Add(display.Position{X: 7, Y: -3})))
	assert.Equal(t, display.Position{X: 3844 + 14, Y: 494}, h.ctrl.Position())
}

func TestRemoteMoveSlidesAlongEdges(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)
	anchor := h.ctrl.Anchor()
	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 4000, Y: 0}))
	require.Equal(t, Remote, h.ctrl.State())
	h.transport.take()

	// straight up is invalid: only re-centre
	movesBefore := len(h.injector.Moves())
	require.NoError(t, h.ctrl.HandleLocalSample(anchor.Add(display.Position{Y: -10})))
	assert.Empty(t, h.transport.take())
	assert.Equal(t, display.Position{X: 4000, Y: 0}, h.ctrl.Position())
	assert.Len(t, h.injector.Moves(), movesBefore+1)

	// diagonal keeps the horizontal part
	require.NoError(t, h.ctrl.HandleLocalSample(anchor.Add(display.Position{X: 10, Y: -10})))
	assert.Equal(t, []string{"M4010|0"}, frames(h.transport.take()))
}

func TestHandleRemotePosition(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)

	// a peer drives the pointer onto another machine
	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 100, Y: 100}))
	assert.Equal(t, Remote, h.ctrl.State())
	assert.True(t, h.indicator.visible)
	assert.Equal(t, []display.Position{h.ctrl.Anchor()}, h.injector.Moves())

	// further positions elsewhere only update the global position
	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 4000, Y: 100}))
	assert.Len(t, h.injector.Moves(), 1)
	assert.Equal(t, display.Position{X: 4000, Y: 100}, h.ctrl.Position())

	// and onto this machine
	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 1920 + 42, Y: 7}))
	assert.Equal(t, Local, h.ctrl.State())
	assert.False(t, h.indicator.visible)
	assert.Equal(t, display.Position{X: 42, Y: 7}, h.injector.Moves()[1])

	// positions are never re-broadcast
	assert.Empty(t, h.transport.take())

	// out of range positions are dropped
	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: -1, Y: 7}))
	assert.Equal(t, display.Position{X: 1962, Y: 7}, h.ctrl.Position())
}

func TestIndicatorFailureIsReported(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)
	h.indicator.err = errors.New("overlay not running")

	err := h.ctrl.HandleLocalSample(display.Position{X: 1919, Y: 500})
	assert.ErrorIs(t, err, ErrIndicator)
	assert.Equal(t, Remote, h.ctrl.State(), "the transition still happens")
	assert.Equal(t, []string{"M3844|500"}, frames(h.transport.take()))
}

func TestNoPeersIsNotAnError(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)
	h.transport.sendErr = network.ErrNoPeers
	assert.NoError(t, h.ctrl.HandleLocalSample(display.Position{X: 10, Y: 10}))

	h.transport.sendErr = errors.New("boom")
	assert.Error(t, h.ctrl.HandleLocalSample(display.Position{X: 11, Y: 10}))
}

func TestHandleDisplays(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, false)
	newPeer := netip.MustParseAddrPort("10.0.0.9:47771")

	require.NoError(t, h.ctrl.HandleDisplays(newPeer, []display.Rect{{ID: 1, Width: 1280, Height: 1024}}))
	entries := h.topo.Layout().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, display.Networked(newPeer), entries[2].Client)

	err := h.ctrl.HandleDisplays(addrSelf, fullHD())
	assert.ErrorIs(t, err, display.ErrNotNetworked)
}

func TestHandleDisplaysRequest(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, true)

	require.NoError(t, h.ctrl.HandleDisplaysRequest(addrLeft, protocol.DisplaysRequest{Addr: netip.MustParseAddr("10.0.0.5")}))
	assert.Empty(t, h.transport.take(), "request aimed at another host")

	require.NoError(t, h.ctrl.HandleDisplaysRequest(addrLeft, protocol.DisplaysRequest{Addr: addrSelf.Addr()}))
	out := h.transport.take()
	require.Len(t, out, 1)
	assert.Equal(t, addrLeft, out[0].to)
	assert.Equal(t, `D{"displays":[{"id":0,"x":0,"y":0,"width":1920,"height":1080}]}`, out[0].frame)
}

func TestRequestAndAnnounceDisplays(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5}, false)

	require.NoError(t, h.ctrl.RequestDisplays(addrRight))
	require.NoError(t, h.ctrl.AnnounceDisplays())
	assert.Equal(t, []sent{
		{to: addrRight, frame: "R10.0.0.3"},
		{frame: `D{"displays":[{"id":0,"x":0,"y":0,"width":1920,"height":1080}]}`},
	}, h.transport.take())
}

func TestAnchorOverride(t *testing.T) {
	h := newHarness(t, Config{Anchor: display.Position{X: 100, Y: 200}}, true)
	assert.Equal(t, display.Position{X: 100, Y: 200}, h.ctrl.Anchor())
}

func TestReclaim(t *testing.T) {
	h := newHarness(t, Config{EdgeNudge: 5, EchoesInjection: true}, true)

	// nothing to do while the pointer is here
	require.NoError(t, h.ctrl.Reclaim())
	assert.Empty(t, h.transport.take())
	assert.Empty(t, h.states)

	require.NoError(t, h.ctrl.HandleRemotePosition(display.Position{X: 4000, Y: 200}))
	require.Equal(t, Remote, h.ctrl.State())
	h.transport.take()

	require.NoError(t, h.ctrl.Reclaim())
	assert.Equal(t, Local, h.ctrl.State())
	assert.False(t, h.indicator.visible)
	assert.Equal(t, display.Position{X: 2880, Y: 540}, h.ctrl.Position())
	assert.Equal(t, []string{"M2880|540"}, frames(h.transport.take()))
	assert.Equal(t, []State{Remote, Local}, h.states)

	moves := h.injector.Moves()
	assert.Equal(t, h.ctrl.Anchor(), moves[len(moves)-1])

	// the injected anchor does not echo back out
	require.NoError(t, h.ctrl.HandleLocalSample(h.ctrl.Anchor()))
	assert.Empty(t, h.transport.take())
}
