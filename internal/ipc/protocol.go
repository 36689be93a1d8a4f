package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/seamless/internal/display"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind identifies an IPC message
type Kind string

const (
	KindStatusQuery    Kind = "status"
	KindStatusResponse Kind = "status_response"
	KindIndicator      Kind = "indicator"
	KindRelease        Kind = "release"
	KindAck            Kind = "ack"
	KindError          Kind = "error"
)

var (
	// ErrUnsupported is answered for message kinds an endpoint does not serve.
	ErrUnsupported = errors.New("message not supported by this endpoint")
	// ErrMalformed reports a frame that is not a valid IPC message.
	ErrMalformed = errors.New("malformed ipc message")
)

// maxFrameSize bounds a single length-prefixed frame.
const maxFrameSize = 1 << 20

// Message is one request or response. On the wire it is a protobuf Struct
// with a "kind" string and an optional "body" struct.
type Message struct {
	Kind Kind
	Body *structpb.Struct
}

// Status is what a running node reports about itself
type Status struct {
	Identity string         `json:"identity"`
	Address  string         `json:"address,omitempty"`
	State    string         `json:"state"`
	X        int            `json:"x"`
	Y        int            `json:"y"`
	Peers    []PeerStatus   `json:"peers"`
	Layout   []ClientStatus `json:"layout"`
	HeldKeys []string       `json:"held_keys,omitempty"`
}

// PeerStatus describes one alive peer
type PeerStatus struct {
	Addr       string `json:"addr"`
	Unicast    string `json:"unicast"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// ClientStatus is one machine in the shared layout, left to right.
type ClientStatus struct {
	Client   string         `json:"client"`
	Self     bool           `json:"self"`
	Displays []display.Rect `json:"displays"`
}

// NewStatusQuery asks a node for its Status.
func NewStatusQuery() Message {
	return Message{Kind: KindStatusQuery}
}

// NewStatusResponse wraps st for the wire.
func NewStatusResponse(st Status) (Message, error) {
	body, err := toStruct(st)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode status: %w", err)
	}
	return Message{Kind: KindStatusResponse, Body: body}, nil
}

// NewIndicator asks the overlay to show or hide itself.
func NewIndicator(visible bool) Message {
	return Message{
		Kind: KindIndicator,
		Body: &structpb.Struct{Fields: map[string]*structpb.Value{
			"visible": structpb.NewBoolValue(visible),
		}},
	}
}

// NewRelease asks a node to bring the pointer back to its own screens.
func NewRelease() Message {
	return Message{Kind: KindRelease}
}

// NewAck is the empty success response
func NewAck() Message {
	return Message{Kind: KindAck}
}

// NewError reports err to the caller.
func NewError(err error) Message {
	fields := map[string]*structpb.Value{
		"error": structpb.NewStringValue(err.Error()),
	}
	if errors.Is(err, ErrUnsupported) {
		fields["code"] = structpb.NewStringValue("unsupported")
	}
	return Message{Kind: KindError, Body: &structpb.Struct{Fields: fields}}
}

// Status decodes a status response.
func (m Message) Status() (Status, error) {
	var st Status
	if m.Kind != KindStatusResponse {
		return st, fmt.Errorf("%w: %q is not a status response", ErrMalformed, m.Kind)
	}
	if err := fromStruct(m.Body, &st); err != nil {
		return st, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return st, nil
}

// Visible decodes an indicator request.
func (m Message) Visible() (bool, error) {
	if m.Kind != KindIndicator {
		return false, fmt.Errorf("%w: %q is not an indicator request", ErrMalformed, m.Kind)
	}
	v, ok := m.Body.GetFields()["visible"]
	if !ok {
		return false, fmt.Errorf("%w: indicator without visible field", ErrMalformed)
	}
	if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
		return false, fmt.Errorf("%w: visible is not a bool", ErrMalformed)
	}
	return v.GetBoolValue(), nil
}

// Err returns the error carried by an error response, nil otherwise.
func (m Message) Err() error {
	if m.Kind != KindError {
		return nil
	}
	fields := m.Body.GetFields()
	if fields["code"].GetStringValue() == "unsupported" {
		return ErrUnsupported
	}
	return fmt.Errorf("remote error: %s", fields["error"].GetStringValue())
}

func (m Message) toProto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"kind": structpb.NewStringValue(string(m.Kind)),
	}
	if m.Body != nil {
		fields["body"] = structpb.NewStructValue(m.Body)
	}
	return &structpb.Struct{Fields: fields}
}

func fromProto(s *structpb.Struct) (Message, error) {
	fields := s.GetFields()
	kind := fields["kind"].GetStringValue()
	if kind == "" {
		return Message{}, fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	return Message{Kind: Kind(kind), Body: fields["body"].GetStructValue()}, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return errors.New("empty body")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeFrame writes m as a 4 byte big endian length followed by the
// marshalled protobuf.
func writeFrame(w io.Writer, m Message) error {
	data, err := proto.Marshal(m.toProto())
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("message of %d bytes exceeds frame limit", len(data))
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data))) //nolint:gosec // bounded by maxFrameSize
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Message{}, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxFrameSize {
		return Message{}, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, fmt.Errorf("failed to read message data: %w", err)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fromProto(&s)
}
