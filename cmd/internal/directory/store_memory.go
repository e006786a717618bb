package directory

import (
	"context"
	"sync"
)

// MemoryStore is a dev/test fallback when DB is not configured.
// Uniqueness of keys and of (room, user) memberships is enforced the same way
// the Postgres store enforces it, so service behavior matches across backends.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]Room       // room id -> room
	byKey   map[string]string     // key -> room id
	members map[string]Membership // room id + "/" + user id -> membership
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]Room),
		byKey:   make(map[string]string),
		members: make(map[string]Membership),
	}
}

// CreateRoom inserts a room, failing with ErrKeyConflict on a duplicate key.
func (s *MemoryStore) CreateRoom(ctx context.Context, room Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room.ID == "" || room.Key == "" || room.OwnerID == "" {
		return ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[room.Key]; exists {
		return ErrKeyConflict
	}
	s.rooms[room.ID] = room
	s.byKey[room.Key] = room.ID
	return nil
}

// ResolveKey returns the room id for a key or ErrRoomNotFound.
func (s *MemoryStore) ResolveKey(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return "", ErrRoomNotFound
	}
	return id, nil
}

// AddMembership inserts a membership row; duplicates are a no-op.
func (s *MemoryStore) AddMembership(ctx context.Context, m Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.RoomID == "" || m.UserID == "" {
		return ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := m.RoomID + "/" + m.UserID
	if _, exists := s.members[k]; exists {
		return nil
	}
	s.members[k] = m
	return nil
}

// GetRoom returns the room only for its owner or a member.
func (s *MemoryStore) GetRoom(ctx context.Context, roomID, userID string) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	if room.OwnerID != userID {
		if _, member := s.members[roomID+"/"+userID]; !member {
			// Indistinguishable from a missing room to avoid probing.
			return Room{}, ErrRoomNotFound
		}
	}
	return room, nil
}

// IsMember reports whether userID has access to roomID.
func (s *MemoryStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok && room.OwnerID == userID {
		return true, nil
	}
	_, member := s.members[roomID+"/"+userID]
	return member, nil
}

// MembershipCount returns the number of membership rows for a room (tests).
func (s *MemoryStore) MembershipCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.members {
		if m.RoomID == roomID {
			n++
		}
	}
	return n
}
