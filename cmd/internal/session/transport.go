package session

import (
	"context"

	v1 "loom/shared/contracts/collab/v1"
)

// EventKind discriminates transport events.
type EventKind uint8

const (
	// EventStatus carries a connection status string
	// (connecting/connected/disconnected).
	EventStatus EventKind = iota + 1
	// EventAwareness carries one peer's descriptor update.
	EventAwareness
	// EventAwarenessState carries a full presence snapshot.
	EventAwarenessState
	// EventPeerGone announces a departed connection.
	EventPeerGone
	// EventDocUpdate carries an opaque document update from a peer.
	EventDocUpdate
)

// Event is a single asynchronous notification from a live connection.
type Event struct {
	Kind EventKind

	Status string

	ConnID     string
	Descriptor v1.Descriptor
	State      map[string]v1.Descriptor

	DocUpdate []byte
}

// Conn is one live connection to a room's shared channel.
//
// Events must be closed by the implementation when the connection dies; the
// controller treats channel closure as a transport-level drop.
type Conn interface {
	// LocalConnID returns the gateway-assigned connection id, or "" before
	// the hello_ack arrives.
	LocalConnID() string
	Events() <-chan Event
	PublishAwareness(d v1.Descriptor) error
	SendDocUpdate(update []byte) error
	Close() error
}

// Transport establishes connections to a room's shared channel.
// The handshake is parameterized by room id and bearer token only; everything
// else is transport policy.
type Transport interface {
	Connect(ctx context.Context, roomID, token string) (Conn, error)
}
