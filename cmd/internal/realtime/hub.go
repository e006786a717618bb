package realtime

import (
	"log/slog"
	"sync"
)

// Hub owns in-memory rooms and provides stable room handles.
// It is intentionally minimal: authorization lives behind MembershipStore and
// durable state behind the directory store.
//
// Handle lifecycle: joins and releases share the hub's critical section, so a
// handle returned by Join always holds the caller as a member and cannot have
// been dropped from the map in between.
type Hub struct {
	log *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Join resolves the room handle and registers the client in it as one
// operation. Resolving and joining in separate critical sections would let a
// departing last member release the handle in between, stranding the joiner
// in a room object no longer reachable through the hub.
func (h *Hub) Join(roomID string, client *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.roomLocked(roomID)
	r.Join(client)
	return r
}

// GetOrCreateRoom returns a stable in-memory room handle without joining.
// Callers that intend to become members must use Join instead.
func (h *Hub) GetOrCreateRoom(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomLocked(roomID)
}

func (h *Hub) roomLocked(roomID string) *Room {
	if r, ok := h.rooms[roomID]; ok {
		return r
	}
	r := NewRoom(h.log, roomID)
	h.rooms[roomID] = r
	return r
}

// ReleaseIfEmpty drops the in-memory handle once the last member left.
// Durable room rows are untouched; this only bounds memory. The emptiness
// check runs under the hub lock, so it cannot race a concurrent Join.
func (h *Hub) ReleaseIfEmpty(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok && r.Empty() {
		delete(h.rooms, roomID)
	}
}
