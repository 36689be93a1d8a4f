// Package network owns the discovery and unicast UDP channels and tracks
// which peers are alive.
package network

import (
	"bytes"

	"github.com/google/uuid"
)

// Identity is the per-process token announced on the discovery group. A node
// recognises its own echoed announcement by it and so learns the address
// other peers observe it under.
type Identity struct {
	token uuid.UUID
}

// NewIdentity creates a random identity.
func NewIdentity() *Identity {
	return &Identity{token: uuid.New()}
}

// Token returns the identity as announced on the wire
func (i *Identity) Token() string {
	return i.token.String()
}

// Payload is the discovery datagram body.
func (i *Identity) Payload() []byte {
	return []byte(i.token.String())
}

// parseToken decodes a discovery payload. ok is false for anything that is
// not an announcement.
func parseToken(payload []byte) (uuid.UUID, bool) {
	id, err := uuid.ParseBytes(bytes.TrimSpace(payload))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Is reports whether a discovery payload is this identity's own announcement.
func (i *Identity) Is(payload []byte) bool {
	id, ok := parseToken(payload)
	return ok && id == i.token
}
