package input

import (
	"context"
	"testing"

	"github.com/bnema/seamless/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTokens(t *testing.T) {
	for _, name := range KeyNames() {
		k, err := KeyNamed(name)
		require.NoError(t, err)
		assert.Equal(t, name, k.Name())

		parsed, err := ParseKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed, "token %s", k)
	}

	for idx := ButtonLeft; idx <= ButtonForward; idx++ {
		k, err := MouseButton(idx)
		require.NoError(t, err)
		parsed, err := ParseKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestParseKeyErrors(t *testing.T) {
	for _, token := range []string{"", "A", "K_", "K_Hyper", "M_", "M_0", "M_6", "M_x", "X_A", "M_-1"} {
		_, err := ParseKey(token)
		assert.ErrorIs(t, err, ErrUnknownKey, "token %q", token)
	}
}

func TestKeyNames(t *testing.T) {
	tests := []struct {
		token string
		name  string
		code  uint16
	}{
		{token: "K_A", name: "A", code: 30},
		{token: "K_Key0", name: "Key0", code: 11},
		{token: "K_F12", name: "F12", code: 88},
		{token: "K_Meta", name: "Meta", code: 125},
		{token: "M_1", name: "Left", code: 1},
		{token: "M_4", name: "Back", code: 4},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			k, err := ParseKey(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.name, k.Name())
			assert.Equal(t, tt.code, k.Code)
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, Down, d)

	d, err = ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	_, err = ParseDirection("UP")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestCursorMove(t *testing.T) {
	// 1920x1080 at the origin, 1280x1024 to its right, top aligned
	c := NewCursor([]display.Rect{
		{ID: 0, Width: 1920, Height: 1080},
		{ID: 1, X: 1920, Width: 1280, Height: 1024},
	})
	assert.Equal(t, display.Position{X: 960, Y: 540}, c.Position())

	tests := []struct {
		name   string
		start  display.Position
		dx, dy int
		want   display.Position
	}{
		{name: "interior", start: display.Position{X: 100, Y: 100}, dx: 5, dy: -3, want: display.Position{X: 105, Y: 97}},
		{name: "clamped left", start: display.Position{X: 2, Y: 100}, dx: -50, want: display.Position{X: 0, Y: 100}},
		{name: "clamped right", start: display.Position{X: 3190, Y: 100}, dx: 50, want: display.Position{X: 3199, Y: 100}},
		{name: "clamped top", start: display.Position{X: 100, Y: 3}, dy: -10, want: display.Position{X: 100, Y: 0}},
		{name: "clamped to shorter display", start: display.Position{X: 1900, Y: 1070}, dx: 100, want: display.Position{X: 2000, Y: 1023}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.Set(tt.start)
			assert.Equal(t, tt.want, c.Move(tt.dx, tt.dy))
			assert.Equal(t, tt.want, c.Position())
		})
	}
}

func TestNopInjectorTracksCursor(t *testing.T) {
	c := NewCursor([]display.Rect{{Width: 800, Height: 600}})
	inj := NewNopInjector(c)

	require.NoError(t, inj.MoveTo(display.Position{X: 10, Y: 20}))
	assert.Equal(t, display.Position{X: 10, Y: 20}, c.Position())
	assert.Equal(t, []display.Position{{X: 10, Y: 20}}, inj.Moves())

	k, err := KeyNamed("Enter")
	require.NoError(t, err)
	require.NoError(t, inj.Key(KeyInput{Key: k, Direction: Down}))
	assert.Len(t, inj.Keys(), 1)
}

type pollingSource struct{ echoes bool }

func (pollingSource) Run(context.Context, Events) error { return nil }
func (pollingSource) SetGrab(bool) error                { return nil }
func (p pollingSource) EchoesInjection() bool           { return p.echoes }

type plainSource struct{}

func (plainSource) Run(context.Context, Events) error { return nil }
func (plainSource) SetGrab(bool) error                { return nil }

func TestEchoesInjection(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want bool
	}{
		{name: "nil source", src: nil, want: false},
		{name: "source without the method", src: plainSource{}, want: false},
		{name: "source that echoes", src: pollingSource{echoes: true}, want: true},
		{name: "source that does not echo", src: pollingSource{}, want: false},
		{name: "evdev", src: &EvdevSource{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EchoesInjection(tt.src))
		})
	}
}
