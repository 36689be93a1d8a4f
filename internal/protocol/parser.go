package protocol

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/input"
)

// Frame prefixes
const (
	PrefixPointer  = "M"
	PrefixDisplays = "D"
	PrefixRequest  = "R"
	PrefixKey      = "K"
)

type parser struct {
	prefix string
	parse  func(body string) (Event, error)
}

// parsers are tried in order; the first prefix match wins.
var parsers = []parser{
	{prefix: PrefixPointer, parse: parsePointer},
	{prefix: PrefixDisplays, parse: parseDisplays},
	{prefix: PrefixRequest, parse: parseRequest},
	{prefix: PrefixKey, parse: parseKey},
}

type displaysBody struct {
	Displays []display.Rect `json:"displays"`
}

// Serialize encodes ev as a frame. Only a display announcement can fail.
func Serialize(ev Event) (string, error) {
	switch e := ev.(type) {
	case PointerPosition:
		return PrefixPointer + strconv.Itoa(e.X) + "|" + strconv.Itoa(e.Y), nil
	case DisplayAnnouncement:
		displays := e.Displays
		if displays == nil {
			displays = []display.Rect{}
		}
		body, err := json.Marshal(displaysBody{Displays: displays})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrSerialize, err)
		}
		return PrefixDisplays + string(body), nil
	case DisplaysRequest:
		return PrefixRequest + e.Addr.String(), nil
	case KeyEvent:
		return PrefixKey + e.Input.Direction.String() + "|" + e.Input.Key.String(), nil
	default:
		return "", fmt.Errorf("%w: unknown event %T", ErrSerialize, ev)
	}
}

// MustSerialize is Serialize for events that cannot fail to encode.
func MustSerialize(ev Event) string {
	s, err := Serialize(ev)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes a frame.
func Parse(frame string) (Event, error) {
	for _, p := range parsers {
		if strings.HasPrefix(frame, p.prefix) {
			return p.parse(frame[len(p.prefix):])
		}
	}
	if len(frame) > 16 {
		frame = frame[:16] + "..."
	}
	return nil, fmt.Errorf("%w: %q", ErrNoParser, frame)
}

func parsePointer(body string) (Event, error) {
	parts := strings.Split(body, "|")
	if len(parts) != 2 {
		return nil, parserErrorf("pointer", "expected <x>|<y>, got %q", body)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, parserErrorf("pointer", "invalid x coordinate %q", parts[0])
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, parserErrorf("pointer", "invalid y coordinate %q", parts[1])
	}
	return PointerPosition{X: x, Y: y}, nil
}

func parseDisplays(body string) (Event, error) {
	var b displaysBody
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, parserErrorf("displays", "invalid json: %v", err)
	}
	for _, d := range b.Displays {
		if d.Width <= 0 || d.Height <= 0 {
			return nil, parserErrorf("displays", "display %d has invalid size %dx%d", d.ID, d.Width, d.Height)
		}
	}
	if b.Displays == nil {
		b.Displays = []display.Rect{}
	}
	return DisplayAnnouncement{Displays: b.Displays}, nil
}

func parseRequest(body string) (Event, error) {
	addr, err := netip.ParseAddr(body)
	if err != nil || !addr.Is4() {
		return nil, parserErrorf("displays request", "invalid ipv4 address %q", body)
	}
	return DisplaysRequest{Addr: addr}, nil
}

func parseKey(body string) (Event, error) {
	parts := strings.Split(body, "|")
	if len(parts) != 2 {
		return nil, parserErrorf("key", "expected <direction>|<key>, got %q", body)
	}
	dir, err := input.ParseDirection(parts[0])
	if err != nil {
		return nil, parserErrorf("key direction", "%v", err)
	}
	key, err := input.ParseKey(parts[1])
	if err != nil {
		return nil, parserErrorf("key", "%v", err)
	}
	return KeyEvent{Input: input.KeyInput{Key: key, Direction: dir}}, nil
}
