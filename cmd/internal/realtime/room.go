package realtime

import (
	"log/slog"
	"sync"

	v1 "loom/shared/contracts/collab/v1"
)

// Room is an in-memory fanout primitive for one collaboration room.
// It owns the room's live membership and the per-connection awareness
// registry the gateway uses to serve snapshots to late joiners.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log *slog.Logger
	ID  string

	mu        sync.RWMutex
	members   map[string]*Client
	awareness map[string]v1.Descriptor
}

// NewRoom constructs a room fanout handle.
func NewRoom(log *slog.Logger, id string) *Room {
	return &Room{
		log:       log,
		ID:        id,
		members:   make(map[string]*Client),
		awareness: make(map[string]v1.Descriptor),
	}
}

// Join adds a client to membership.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.ConnID] = client
	r.mu.Unlock()

	r.log.Info("room.member.join", "room_id", r.ID, "conn_id", client.ConnID, "user_id", client.UserID)
}

// Leave removes a client from membership, drops its awareness entry, and
// signals shutdown for that client.
func (r *Room) Leave(connID string) {
	if r == nil || connID == "" {
		return
	}

	var cl *Client

	r.mu.Lock()
	cl = r.members[connID]
	delete(r.members, connID)
	delete(r.awareness, connID)
	r.mu.Unlock()

	// Signal client shutdown after removing from membership.
	// This ordering avoids race windows where a broadcaster still holds a pointer
	// while the client goroutines are being torn down.
	if cl != nil {
		cl.Close()
	}

	r.log.Info("room.member.leave", "room_id", r.ID, "conn_id", connID)
}

// SetAwareness records the last-published descriptor for a connection.
func (r *Room) SetAwareness(connID string, d v1.Descriptor) {
	if r == nil || connID == "" {
		return
	}
	r.mu.Lock()
	r.awareness[connID] = d
	r.mu.Unlock()
}

// AwarenessSnapshot returns a copy of the current awareness registry.
func (r *Room) AwarenessSnapshot() map[string]v1.Descriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]v1.Descriptor, len(r.awareness))
	for id, d := range r.awareness {
		out[id] = d
	}
	return out
}

// Empty reports whether the room has no live members.
func (r *Room) Empty() bool {
	if r == nil {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

// Broadcast fanouts an envelope to all members.
// Non-blocking: if a member queue is full or the client is shutting down, it is dropped.
func (r *Room) Broadcast(env v1.Envelope) {
	r.BroadcastExcept(env, "")
}

// BroadcastExcept fanouts an envelope to all members except one connection.
// Used for doc relays where the sender already holds the update.
func (r *Room) BroadcastExcept(env v1.Envelope, exceptConnID string) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, m := range r.members {
		if m == nil || id == exceptConnID {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole room.
		}
	}
}
