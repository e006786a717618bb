package realtime

import "context"

// MembershipStore defines the authorization boundary for room access.
// The directory stores implement it; the gateway consults it once per
// handshake, before the connection joins a room.
type MembershipStore interface {
	// IsMember returns true if userID may access roomID.
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}
