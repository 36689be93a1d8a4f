package input

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// Sink receives key transitions leaving the tracker.
type Sink func(KeyInput)

// HeldKeys tracks which keys are down and keeps that state alive on the far
// side of a lossy link. Downs are forwarded once and then re-sent on every
// refresh tick; a key not refreshed within the expiry is released with a
// synthetic Up.
type HeldKeys struct {
	mu      sync.Mutex
	held    map[Key]mclock.AbsTime
	sink    Sink
	clock   mclock.Clock
	refresh time.Duration
	expiry  time.Duration
	resend  bool
	expire  bool
}

// Option configures a HeldKeys tracker
type Option func(*HeldKeys)

// WithClock replaces the system clock
func WithClock(c mclock.Clock) Option {
	return func(h *HeldKeys) { h.clock = c }
}

// WithRefresh sets the re-send interval
func WithRefresh(d time.Duration) Option {
	return func(h *HeldKeys) { h.refresh = d }
}

// WithExpiry sets how long a key stays held without a refresh
func WithExpiry(d time.Duration) Option {
	return func(h *HeldKeys) { h.expiry = d }
}

// WithoutResend disables the periodic Down re-send.
func WithoutResend() Option {
	return func(h *HeldKeys) { h.resend = false }
}

// WithoutExpiry disables synthetic Ups for stale keys.
func WithoutExpiry() Option {
	return func(h *HeldKeys) { h.expire = false }
}

// NewHeldKeys creates a tracker forwarding to sink. By default it re-sends
// every 25ms and expires keys after 75ms.
func NewHeldKeys(sink Sink, opts ...Option) *HeldKeys {
	h := &HeldKeys{
		held:    make(map[Key]mclock.AbsTime),
		sink:    sink,
		clock:   mclock.System{},
		refresh: 25 * time.Millisecond,
		expiry:  75 * time.Millisecond,
		resend:  true,
		expire:  true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnKeyEvent records a transition. A Down for a key already held only
// refreshes it; every Up is forwarded, held or not.
func (h *HeldKeys) OnKeyEvent(in KeyInput) {
	now := h.clock.Now()

	h.mu.Lock()
	forward := true
	switch in.Direction {
	case Down:
		if _, ok := h.held[in.Key]; ok {
			forward = false
		}
		h.held[in.Key] = now
	case Up:
		delete(h.held, in.Key)
	}
	h.mu.Unlock()

	if forward {
		h.sink(in)
	}
}

// Run drives the refresh loop until ctx is done.
func (h *HeldKeys) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.clock.After(h.refresh):
			h.tick(h.clock.Now())
		}
	}
}

// ReleaseAll forwards an Up for every held key and empties the set.
func (h *HeldKeys) ReleaseAll() {
	h.mu.Lock()
	keys := h.sortedLocked()
	clear(h.held)
	h.mu.Unlock()

	for _, k := range keys {
		h.sink(KeyInput{Key: k, Direction: Up})
	}
}

// Held returns the held keys in a stable order.
func (h *HeldKeys) Held() []Key {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sortedLocked()
}

// Holds reports whether k is currently held
func (h *HeldKeys) Holds(k Key) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.held[k]
	return ok
}

func (h *HeldKeys) tick(now mclock.AbsTime) {
	var out []KeyInput

	h.mu.Lock()
	for _, k := range h.sortedLocked() {
		if h.expire && time.Duration(now-h.held[k]) > h.expiry {
			delete(h.held, k)
			out = append(out, KeyInput{Key: k, Direction: Up})
			continue
		}
		if h.resend {
			out = append(out, KeyInput{Key: k, Direction: Down})
		}
	}
	h.mu.Unlock()

	for _, in := range out {
		h.sink(in)
	}
}

func (h *HeldKeys) sortedLocked() []Key {
	keys := make([]Key, 0, len(h.held))
	for k := range h.held {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		return int(a.Code) - int(b.Code)
	})
	return keys
}
