package display

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA    = netip.MustParseAddrPort("10.0.0.1:47771")
	addrSelf = netip.MustParseAddrPort("10.0.0.2:47771")
	addrC    = netip.MustParseAddrPort("10.0.0.3:47771")
	addrD    = netip.MustParseAddrPort("10.0.0.4:47771")
)

func fullHD(id uint32) Rect {
	return Rect{ID: id, Width: 1920, Height: 1080}
}

// threeMachines builds A | self | C, each a single 1920x1080 display.
func threeMachines(t *testing.T) *Topology {
	t.Helper()
	topo := NewTopology([]Rect{fullHD(0)})
	topo.SetLocalAddress(addrSelf)
	require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrC), []Rect{fullHD(0)})))
	require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrA), []Rect{fullHD(0)})))
	return topo
}

func TestEdgeOf(t *testing.T) {
	layout := threeMachines(t).Layout()
	require.Len(t, layout.Entries(), 3)

	tests := []struct {
		name   string
		x      int
		client int
		want   Edge
	}{
		{name: "first machine left edge has no neighbour", x: 0, client: 0, want: EdgeNone},
		{name: "first machine right boundary", x: 1920, client: 0, want: EdgeRight},
		{name: "middle machine last pixel", x: 1919, client: 1, want: EdgeNone},
		{name: "middle machine left edge", x: 0, client: 1, want: EdgeLeft},
		{name: "middle machine interior", x: 960, client: 1, want: EdgeNone},
		{name: "middle machine right boundary", x: 1920, client: 1, want: EdgeRight},
		{name: "last machine last pixel", x: 1919, client: 2, want: EdgeNone},
		{name: "last machine beyond right has no neighbour", x: 1925, client: 2, want: EdgeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, err := layout.EdgeOf(Position{X: tt.x, Y: 500}, tt.client)
			require.NoError(t, err)
			assert.Equal(t, tt.want, edge)
		})
	}

	_, err := layout.EdgeOf(Position{}, 3)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestLocalPositionOf(t *testing.T) {
	layout := threeMachines(t).Layout()

	pos, err := layout.LocalPositionOf(Position{X: 100, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, Networked(addrA), pos.Client)
	assert.Equal(t, 0, pos.ClientIndex)

	pos, err = layout.LocalPositionOf(Position{X: 1920 + 5, Y: 20})
	require.NoError(t, err)
	assert.True(t, pos.Client.IsSelf())
	assert.Equal(t, Position{X: 5, Y: 20}, pos.Position)

	pos, err = layout.LocalPositionOf(Position{X: 3840, Y: 1079})
	require.NoError(t, err)
	assert.Equal(t, Networked(addrC), pos.Client)
	assert.Equal(t, Position{X: 0, Y: 1079}, pos.Position)

	for _, g := range []Position{{X: -1, Y: 0}, {X: 0, Y: -1}, {X: 5760, Y: 0}, {X: 10, Y: 1080}} {
		_, err := layout.LocalPositionOf(g)
		assert.ErrorIs(t, err, ErrInvalidMousePosition, "position %s", g)
	}
}

func TestLocalPositionOfMultiDisplay(t *testing.T) {
	topo := NewTopology([]Rect{
		{ID: 1, X: 1920, Y: 0, Width: 2560, Height: 1440},
		{ID: 0, X: 0, Y: 180, Width: 1920, Height: 1080},
	})
	topo.SetLocalAddress(addrSelf)
	layout := topo.Layout()

	assert.Equal(t, 4480, layout.Width())

	pos, err := layout.LocalPositionOf(Position{X: 1920 + 10, Y: 1300})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pos.DisplayID)
	assert.Equal(t, Position{X: 1930, Y: 1300}, pos.Position)

	_, err = layout.LocalPositionOf(Position{X: 10, Y: 1200})
	assert.ErrorIs(t, err, ErrInvalidMousePosition, "taller than display 0")

	g, err := layout.GlobalPositionOf(Position{X: 100, Y: 200})
	require.NoError(t, err)
	assert.Equal(t, Position{X: 100, Y: 20}, g)
}

func TestCoordinateRoundTrip(t *testing.T) {
	topo := NewTopology([]Rect{fullHD(0)})
	topo.SetLocalAddress(addrSelf)
	require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrA), []Rect{fullHD(0), {ID: 1, X: 1920, Width: 1280, Height: 1024}})))
	layout := topo.Layout()

	offset := 1920 + 1280
	for _, x := range []int{0, 1, 959, 1918, 1919} {
		for _, y := range []int{0, 540, 1079} {
			g := Position{X: offset + x, Y: y}
			local, err := layout.LocalPositionOf(g)
			require.NoError(t, err)
			require.True(t, local.Client.IsSelf())

			back, err := layout.GlobalPositionOf(local.Position)
			require.NoError(t, err)
			assert.Equal(t, g, back)
		}
	}

	_, err := layout.GlobalPositionOf(Position{X: 1920, Y: 0})
	assert.ErrorIs(t, err, ErrInvalidMousePosition)
}

func TestUpsertOrderConverges(t *testing.T) {
	entries := map[netip.AddrPort]ClientDisplays{
		addrA: NewClientDisplays(Networked(addrA), []Rect{fullHD(0)}),
		addrC: NewClientDisplays(Networked(addrC), []Rect{fullHD(0)}),
		addrD: NewClientDisplays(Networked(addrD), []Rect{fullHD(0)}),
	}
	perms := [][]netip.AddrPort{
		{addrA, addrC, addrD},
		{addrA, addrD, addrC},
		{addrC, addrA, addrD},
		{addrC, addrD, addrA},
		{addrD, addrA, addrC},
		{addrD, addrC, addrA},
	}

	want := []string{addrA.String(), "self", addrC.String(), addrD.String()}
	for _, perm := range perms {
		topo := NewTopology([]Rect{fullHD(0)})
		topo.SetLocalAddress(addrSelf)
		for _, addr := range perm {
			require.NoError(t, topo.Upsert(entries[addr]))
		}
		var got []string
		for _, e := range topo.Layout().Entries() {
			got = append(got, e.Client.String())
		}
		assert.Equal(t, want, got, "permutation %v", perm)
	}
}

func TestUpsert(t *testing.T) {
	t.Run("fails before local address is known", func(t *testing.T) {
		topo := NewTopology([]Rect{fullHD(0)})
		err := topo.Upsert(NewClientDisplays(Networked(addrA), []Rect{fullHD(0)}))
		assert.ErrorIs(t, err, ErrLocalAddressUnknown)
	})

	t.Run("rejects self entries", func(t *testing.T) {
		topo := NewTopology([]Rect{fullHD(0)})
		topo.SetLocalAddress(addrSelf)
		assert.ErrorIs(t, topo.Upsert(NewClientDisplays(Self(), nil)), ErrNotNetworked)
		assert.ErrorIs(t, topo.Upsert(NewClientDisplays(Networked(addrSelf), nil)), ErrNotNetworked)
	})

	t.Run("replaces whole entry", func(t *testing.T) {
		topo := NewTopology([]Rect{fullHD(0)})
		topo.SetLocalAddress(addrSelf)
		require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrA), []Rect{fullHD(0), fullHD(1)})))
		require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrA), []Rect{{ID: 7, Width: 800, Height: 600}})))

		entries := topo.Layout().Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, []Rect{{ID: 7, Width: 800, Height: 600}}, entries[0].Displays)
	})

	t.Run("sorts displays by id", func(t *testing.T) {
		cd := NewClientDisplays(Networked(addrA), []Rect{fullHD(3), fullHD(1), fullHD(2)})
		assert.Equal(t, []uint32{1, 2, 3}, []uint32{cd.Displays[0].ID, cd.Displays[1].ID, cd.Displays[2].ID})
	})
}

func TestSetLocalAddressDropsEcho(t *testing.T) {
	topo := NewTopology([]Rect{fullHD(0)})
	topo.SetLocalAddress(addrA)
	require.NoError(t, topo.Upsert(NewClientDisplays(Networked(addrSelf), []Rect{fullHD(0)})))
	require.Len(t, topo.Layout().Entries(), 2)

	topo.SetLocalAddress(addrSelf)
	entries := topo.Layout().Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Client.IsSelf())

	got, ok := topo.LocalAddress()
	assert.True(t, ok)
	assert.Equal(t, addrSelf, got)
}

func TestPrune(t *testing.T) {
	topo := threeMachines(t)

	removed := topo.Prune([]netip.AddrPort{addrC})
	require.Len(t, removed, 1)
	assert.Equal(t, Networked(addrA), removed[0])

	entries := topo.Layout().Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Client.IsSelf())
	assert.Equal(t, Networked(addrC), entries[1].Client)

	topo.Prune(nil)
	entries = topo.Layout().Entries()
	require.Len(t, entries, 1, "self entry is never pruned")
	assert.True(t, entries[0].Client.IsSelf())
}

func TestMissingDisplays(t *testing.T) {
	layout := threeMachines(t).Layout()
	missing := layout.MissingDisplays([]netip.AddrPort{addrA, addrC, addrD})
	assert.Equal(t, []netip.AddrPort{addrD}, missing)
	assert.Empty(t, layout.MissingDisplays([]netip.AddrPort{addrA}))
}

func TestLayoutIsSnapshot(t *testing.T) {
	topo := threeMachines(t)
	layout := topo.Layout()
	topo.Prune(nil)

	assert.Len(t, layout.Entries(), 3)
	idx, ok := layout.SelfIndex()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []Rect{fullHD(0)}, topo.LocalDisplays())
}
