package input

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []KeyInput
}

func (r *recorder) sink(in KeyInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, in)
}

func (r *recorder) take() []KeyInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func mustKey(t *testing.T, name string) Key {
	t.Helper()
	k, err := KeyNamed(name)
	require.NoError(t, err)
	return k
}

func TestHeldKeysOnKeyEvent(t *testing.T) {
	clock := &mclock.Simulated{}
	rec := &recorder{}
	h := NewHeldKeys(rec.sink, WithClock(clock))
	a := mustKey(t, "A")

	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})
	assert.Equal(t, []KeyInput{{Key: a, Direction: Down}}, rec.take())
	assert.True(t, h.Holds(a))

	// a repeated Down refreshes without forwarding
	clock.Run(10 * time.Millisecond)
	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})
	assert.Empty(t, rec.take())
	assert.Equal(t, []Key{a}, h.Held())

	h.OnKeyEvent(KeyInput{Key: a, Direction: Up})
	assert.Equal(t, []KeyInput{{Key: a, Direction: Up}}, rec.take())
	assert.False(t, h.Holds(a))

	// Up for a key that is not held is still forwarded
	h.OnKeyEvent(KeyInput{Key: a, Direction: Up})
	assert.Equal(t, []KeyInput{{Key: a, Direction: Up}}, rec.take())
}

func TestHeldKeysDownIsIdempotent(t *testing.T) {
	clock := &mclock.Simulated{}
	h := NewHeldKeys(func(KeyInput) {}, WithClock(clock))
	keys := []Key{mustKey(t, "LShift"), mustKey(t, "A")}
	button, err := MouseButton(ButtonLeft)
	require.NoError(t, err)
	keys = append(keys, button)

	for _, k := range keys {
		h.OnKeyEvent(KeyInput{Key: k, Direction: Down})
	}
	before := h.Held()
	for i := 0; i < 5; i++ {
		clock.Run(5 * time.Millisecond)
		for _, k := range keys {
			h.OnKeyEvent(KeyInput{Key: k, Direction: Down})
		}
		assert.Equal(t, before, h.Held())
	}
}

func TestHeldKeysExpiry(t *testing.T) {
	clock := &mclock.Simulated{}
	rec := &recorder{}
	h := NewHeldKeys(rec.sink, WithClock(clock), WithoutResend())
	a := mustKey(t, "A")

	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})
	rec.take()

	clock.Run(75 * time.Millisecond)
	h.tick(clock.Now())
	assert.Empty(t, rec.take(), "exactly at the expiry the key is still held")
	assert.True(t, h.Holds(a))

	clock.Run(time.Millisecond)
	h.tick(clock.Now())
	assert.Equal(t, []KeyInput{{Key: a, Direction: Up}}, rec.take())
	assert.False(t, h.Holds(a))
}

func TestHeldKeysResend(t *testing.T) {
	clock := &mclock.Simulated{}
	rec := &recorder{}
	h := NewHeldKeys(rec.sink, WithClock(clock), WithoutExpiry())
	a, b := mustKey(t, "A"), mustKey(t, "B")

	h.OnKeyEvent(KeyInput{Key: b, Direction: Down})
	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})
	rec.take()

	clock.Run(time.Second)
	h.tick(clock.Now())
	assert.Equal(t, []KeyInput{{Key: a, Direction: Down}, {Key: b, Direction: Down}}, rec.take())
	assert.Len(t, h.Held(), 2, "keys never expire when expiry is disabled")
}

func TestHeldKeysRunExpiresWithoutRefresh(t *testing.T) {
	clock := &mclock.Simulated{}
	rec := &recorder{}
	h := NewHeldKeys(rec.sink, WithClock(clock))
	a := mustKey(t, "A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})

	// t=25, 50, 75: re-sent Downs; t=100: 100ms since the Down, released
	for i := 0; i < 4; i++ {
		clock.WaitForTimers(1)
		clock.Run(25 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return !h.Holds(a) }, time.Second, time.Millisecond)
	events := rec.take()
	require.NotEmpty(t, events)
	assert.Equal(t, KeyInput{Key: a, Direction: Down}, events[0])
	assert.Equal(t, KeyInput{Key: a, Direction: Up}, events[len(events)-1])

	cancel()
	clock.WaitForTimers(1)
	clock.Run(25 * time.Millisecond)
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHeldKeysReleaseAll(t *testing.T) {
	rec := &recorder{}
	h := NewHeldKeys(rec.sink)
	a, ctrl := mustKey(t, "A"), mustKey(t, "LControl")
	h.OnKeyEvent(KeyInput{Key: a, Direction: Down})
	h.OnKeyEvent(KeyInput{Key: ctrl, Direction: Down})
	rec.take()

	h.ReleaseAll()
	assert.ElementsMatch(t, []KeyInput{{Key: a, Direction: Up}, {Key: ctrl, Direction: Up}}, rec.take())
	assert.Empty(t, h.Held())
}
