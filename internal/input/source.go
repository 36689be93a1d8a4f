package input

import (
	"context"
	"sync"

	"github.com/bnema/seamless/internal/display"
)

// Events are the callbacks a Source delivers captured input to.
type Events struct {
	Pointer func(p display.Position)
	Key     func(in KeyInput)
}

// Source captures local input until ctx is done.
type Source interface {
	Run(ctx context.Context, ev Events) error
	// SetGrab toggles exclusive access so the local desktop stops seeing input.
	SetGrab(grab bool) error
}

// Echoer is implemented by sources that report injected moves back as
// pointer samples, as a source polling the OS cursor would.
type Echoer interface {
	EchoesInjection() bool
}

// EchoesInjection reports whether src delivers injected moves back.
func EchoesInjection(src Source) bool {
	e, ok := src.(Echoer)
	return ok && e.EchoesInjection()
}

// Cursor is the tracked absolute position of the local pointer. Relative
// device motion is accumulated into it and injections overwrite it, so the
// capture and injection sides agree on where the cursor is.
type Cursor struct {
	mu       sync.Mutex
	pos      display.Position
	displays []display.Rect
}

// NewCursor creates a cursor confined to displays, starting at the centre
// of the first one.
func NewCursor(displays []display.Rect) *Cursor {
	c := &Cursor{displays: displays}
	if len(displays) > 0 {
		c.pos = displays[0].Center()
	}
	return c
}

// Position returns the tracked cursor position
func (c *Cursor) Position() display.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Set records an absolute position.
func (c *Cursor) Set(p display.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = p
}

// Move applies a relative motion and returns the new position. Like the
// compositor, it never lets the cursor leave the displays: horizontal motion
// into a gap is dropped and the vertical coordinate is clamped to the display
// under the cursor.
func (c *Cursor) Move(dx, dy int) display.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.displays) == 0 {
		c.pos = c.pos.Add(display.Position{X: dx, Y: dy})
		return c.pos
	}

	next := c.pos.Add(display.Position{X: dx, Y: dy})
	left, right := c.displays[0].X, c.displays[0].X+c.displays[0].Width
	for _, d := range c.displays[1:] {
		left = min(left, d.X)
		right = max(right, d.X+d.Width)
	}
	next.X = max(left, min(next.X, right-1))

	target, ok := c.displayAtX(next.X)
	if !ok {
		next.X = c.pos.X
		if target, ok = c.displayAtX(next.X); !ok {
			c.pos = next
			return c.pos
		}
	}
	next.Y = max(target.Y, min(next.Y, target.Y+target.Height-1))
	c.pos = next
	return c.pos
}

func (c *Cursor) displayAtX(x int) (display.Rect, bool) {
	for _, d := range c.displays {
		if x >= d.X && x < d.X+d.Width {
			return d, true
		}
	}
	return display.Rect{}, false
}
