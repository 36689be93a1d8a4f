package input

import (
	"sync"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/logger"
)

// Injector synthesizes local OS input.
type Injector interface {
	MoveTo(p display.Position) error
	Key(in KeyInput) error
	Close() error
}

// NopInjector only tracks the cursor. It is used when injection is disabled
// and in tests.
type NopInjector struct {
	cursor *Cursor

	mu    sync.Mutex
	moves []display.Position
	keys  []KeyInput
}

// NewNopInjector creates an injector updating cursor, which may be nil.
func NewNopInjector(cursor *Cursor) *NopInjector {
	return &NopInjector{cursor: cursor}
}

func (n *NopInjector) MoveTo(p display.Position) error {
	n.mu.Lock()
	n.moves = append(n.moves, p)
	n.mu.Unlock()
	if n.cursor != nil {
		n.cursor.Set(p)
	}
	return nil
}

func (n *NopInjector) Key(in KeyInput) error {
	n.mu.Lock()
	n.keys = append(n.keys, in)
	n.mu.Unlock()
	logger.Debugf("Injection disabled, dropping %s", in)
	return nil
}

func (n *NopInjector) Close() error { return nil }

// Moves returns every position passed to MoveTo
func (n *NopInjector) Moves() []display.Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]display.Position(nil), n.moves...)
}

// Keys returns every key passed to Key
func (n *NopInjector) Keys() []KeyInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]KeyInput(nil), n.keys...)
}
