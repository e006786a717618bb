// Package v1 defines the Loom collaboration protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the gateway and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated during the handshake.
const Subprotocol = "loom.collab.v1"

// Connection status values reported by the transport.
//
// These are forwarded verbatim to session consumers; the transport has no
// opinion on handshake internals beyond these three states.
const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Type constants (wire-stable).
const (
	// TypeHelloAck is sent by the gateway after a successful handshake and
	// carries the connection id assigned to this session.
	TypeHelloAck = "hello_ack"

	// TypeAwarenessUpdate publishes the sender's presence descriptor
	// (client -> server) and is rebroadcast to room peers with the
	// connection id stamped by the gateway.
	TypeAwarenessUpdate = "awareness_update"

	// TypeAwarenessState is a full presence snapshot sent to a connection
	// right after it joins a room (server -> client).
	TypeAwarenessState = "awareness_state"

	// TypePeerGone notifies peers that a connection left the room.
	TypePeerGone = "peer_gone"

	// TypeDocUpdate relays an opaque document update to room peers.
	// The gateway does not interpret the payload; merge semantics belong
	// to the document engine on each client.
	TypeDocUpdate = "doc_update"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHelloAck,
		TypeAwarenessUpdate,
		TypeAwarenessState,
		TypePeerGone,
		TypeDocUpdate,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// Descriptor is the ephemeral presence record published per connection.
// It is never persisted; lifetime is bound to the connection.
type Descriptor struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// HelloAckPayload carries the gateway-assigned connection id.
type HelloAckPayload struct {
	ConnID string `json:"conn_id"`
	RoomID string `json:"room_id"`
}

// AwarenessUpdatePayload publishes or rebroadcasts a presence descriptor.
// ConnID is empty on the client->server leg; the gateway stamps it before
// rebroadcasting.
type AwarenessUpdatePayload struct {
	ConnID     string     `json:"conn_id,omitempty"`
	Descriptor Descriptor `json:"descriptor"`
}

// AwarenessStatePayload is the full presence snapshot for a room.
type AwarenessStatePayload struct {
	RoomID  string                `json:"room_id"`
	Entries map[string]Descriptor `json:"entries"`
}

// PeerGonePayload announces that a connection left the room.
type PeerGonePayload struct {
	ConnID string `json:"conn_id"`
}

// DocUpdatePayload relays an opaque document update.
// Update is base64 inside JSON by virtue of []byte encoding.
type DocUpdatePayload struct {
	ConnID string `json:"conn_id,omitempty"`
	Update []byte `json:"update"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
