// Package directory implements Loom's room directory: room creation, key-based
// join, invite resolution, and membership bookkeeping.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"loom/cmd/identity"
	"loom/cmd/identity/ids"
)

const defaultKeyRetries = 5

// Service manages rooms and memberships on top of a Store.
type Service struct {
	log        *slog.Logger
	store      Store
	keyRetries int
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service) error

// WithKeyRetries sets the retry budget for key-collision regeneration.
func WithKeyRetries(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return errors.New("directory: non-positive key retries")
		}
		s.keyRetries = n
		return nil
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("directory: nil clock")
		}
		s.now = now
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(log *slog.Logger, store Store, opts ...Option) (*Service, error) {
	if log == nil || store == nil {
		return nil, errors.New("directory: nil logger or store")
	}
	s := &Service{
		log:        log,
		store:      store,
		keyRetries: defaultKeyRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateRoom creates a room owned by the principal and returns it.
//
// Key generation retries on uniqueness conflicts up to the configured budget;
// only after exhausting it does the call fail. The owner membership insert is
// idempotent so re-running a half-applied creation converges.
func (s *Service) CreateRoom(ctx context.Context, p identity.Principal) (Room, error) {
	if !p.Valid() {
		return Room{}, ErrAuthRequired
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	now := s.now()

	var room Room
	created := false
	for attempt := 0; attempt < s.keyRetries; attempt++ {
		id, err := ids.NewULID(now)
		if err != nil {
			return Room{}, fmt.Errorf("%w: %v", ErrDirectory, err)
		}

		room = Room{
			ID:        id,
			Key:       NewRoomKey(),
			OwnerID:   p.ID,
			CreatedAt: now,
		}

		err = s.store.CreateRoom(ctx, room)
		if err == nil {
			created = true
			break
		}
		if errors.Is(err, ErrKeyConflict) {
			s.log.Info("directory.room.key_conflict", "attempt", attempt+1)
			continue
		}
		return Room{}, fmt.Errorf("%w: %v", ErrDirectory, err)
	}
	if !created {
		return Room{}, ErrKeyExhausted
	}

	if err := s.store.AddMembership(ctx, Membership{
		RoomID:    room.ID,
		UserID:    p.ID,
		Role:      RoleOwner,
		CreatedAt: now,
	}); err != nil {
		return Room{}, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	s.log.Info("directory.room.create", "room_id", room.ID, "owner_id", p.ID)
	return room, nil
}

// JoinByKey resolves a shareable key to its room and adds a membership row for
// the principal. The lookup goes through the store's privileged ResolveKey;
// there is deliberately no filterable room query, so keys cannot be enumerated
// by trial listing.
func (s *Service) JoinByKey(ctx context.Context, p identity.Principal, key string) (string, error) {
	if !p.Valid() {
		return "", ErrAuthRequired
	}
	key = NormalizeKey(key)
	if key == "" {
		return "", ErrValidation
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	roomID, err := s.store.ResolveKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return "", ErrRoomNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	if err := s.store.AddMembership(ctx, Membership{
		RoomID:    roomID,
		UserID:    p.ID,
		Role:      RoleMember,
		CreatedAt: s.now(),
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	s.log.Info("directory.room.join", "room_id", roomID, "user_id", p.ID)
	return roomID, nil
}

// JoinByInvite joins via an invite string: either a bare key or a URL carrying
// an "invite" query value. Unparseable input falls back to being treated as a
// bare key.
func (s *Service) JoinByInvite(ctx context.Context, p identity.Principal, text string) (string, error) {
	key := ExtractInviteKey(text)
	if key == "" {
		return "", ErrValidation
	}
	return s.JoinByKey(ctx, p, key)
}

// GetRoom returns a room the principal owns or is a member of.
func (s *Service) GetRoom(ctx context.Context, p identity.Principal, roomID string) (Room, error) {
	if !p.Valid() {
		return Room{}, ErrAuthRequired
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Room{}, ErrValidation
	}

	room, err := s.store.GetRoom(ctx, roomID, p.ID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, fmt.Errorf("%w: %v", ErrDirectory, err)
	}
	return room, nil
}

// ExtractInviteKey pulls the invite key out of free-form text.
// If text parses as a URL with an "invite" query value, that value wins;
// otherwise the raw text is the key.
func ExtractInviteKey(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if u, err := url.Parse(text); err == nil {
		if v := strings.TrimSpace(u.Query().Get("invite")); v != "" {
			return v
		}
	}
	return text
}
