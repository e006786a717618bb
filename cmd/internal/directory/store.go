package directory

import (
	"context"
	"errors"
	"time"
)

// Room is a collaborative scope identified by a durable id and a short
// shareable key. Rooms are never mutated after creation.
type Room struct {
	ID        string
	Key       string
	OwnerID   string
	CreatedAt time.Time
}

// Membership grants a principal access to a room.
// Primary key is (RoomID, UserID); insertion is idempotent.
type Membership struct {
	RoomID    string
	UserID    string
	Role      string
	CreatedAt time.Time
}

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Store is the persistence boundary for rooms and memberships.
//
// Requirements:
//   - CreateRoom fails with ErrKeyConflict on a duplicate key so the service
//     can regenerate and retry.
//   - ResolveKey is the only key lookup; no listing or filterable query is
//     exposed, which removes the room-enumeration surface.
//   - AddMembership is insert-or-ignore on (room_id, user_id).
type Store interface {
	CreateRoom(ctx context.Context, room Room) error
	ResolveKey(ctx context.Context, key string) (roomID string, err error)
	AddMembership(ctx context.Context, m Membership) error
	// GetRoom returns the room only when userID is the owner or a member.
	GetRoom(ctx context.Context, roomID, userID string) (Room, error)
	// IsMember reports whether userID has access to roomID.
	// It backs the realtime gateway's ACL check.
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// ErrKeyConflict is the sentinel stores return when a room key already exists.
// It is a store-level contract detail; the service retries and never lets it
// escape.
var ErrKeyConflict = errors.New("room key conflict")
