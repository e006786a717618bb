package urlstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loom/cmd/identity"
)

// Query parameters the synchronizer owns.
const (
	paramRoom   = "room"
	paramDoc    = "doc" // legacy alias, read-only
	paramInvite = "invite"
)

const joinTimeout = 10 * time.Second

// Joiner resolves an invite text (key or URL carrying one) into a room id.
// *directory.Service satisfies it.
type Joiner interface {
	JoinByInvite(ctx context.Context, p identity.Principal, text string) (string, error)
}

// RoomSelector receives the room id the synchronizer resolved.
// *session.Controller satisfies it.
type RoomSelector interface {
	SetRoom(roomID string)
}

// Synchronizer keeps the address in step with the active room.
//
// The room id is read from the address exactly once, at Start. After that the
// flow is one-directional: room selection changes rewrite the address, never
// the reverse. An invite parameter found at Start is spent on one join attempt
// after a principal authenticates and is stripped from the address when that
// attempt resolves, whatever the outcome.
type Synchronizer struct {
	log    *slog.Logger
	addr   Address
	joiner Joiner
	rooms  RoomSelector

	mu            sync.Mutex
	started       bool
	pendingInvite string
	inviteSpent   bool
	lastErr       error
	identSub      *identity.Subscription
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(log *slog.Logger, addr Address, joiner Joiner, rooms RoomSelector) (*Synchronizer, error) {
	if log == nil || addr == nil || joiner == nil || rooms == nil {
		return nil, errors.New("urlstate: nil dependency")
	}
	return &Synchronizer{log: log, addr: addr, joiner: joiner, rooms: rooms}, nil
}

// Start performs the one-time address read: the initial room id (falling back
// to the legacy alias) is pushed to the selector, and any invite value is
// parked for consumption on authentication.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("urlstate: already started")
	}
	s.started = true
	s.mu.Unlock()

	u, err := s.addr.Current()
	if err != nil {
		return err
	}
	q := u.Query()

	roomID := q.Get(paramRoom)
	if roomID == "" {
		roomID = q.Get(paramDoc)
	}
	invite := q.Get(paramInvite)

	s.mu.Lock()
	s.pendingInvite = invite
	s.mu.Unlock()

	if roomID != "" {
		s.log.Info("urlstate.restore", "room_id", roomID)
		s.rooms.SetRoom(roomID)
	}
	return nil
}

// BindIdentity subscribes the synchronizer to principal changes so a parked
// invite is consumed as soon as someone is signed in. If a principal is
// already authenticated the invite is consumed immediately.
func (s *Synchronizer) BindIdentity(m *identity.Manager) {
	sub := m.Subscribe(func(p identity.Principal, signedIn bool) {
		if signedIn {
			s.consumeInvite(p)
		}
	})
	s.mu.Lock()
	s.identSub = sub
	s.mu.Unlock()

	if p, ok := m.Current(); ok {
		s.consumeInvite(p)
	}
}

// RoomChanged rewrites the address for a new room selection: `room` is set
// (or dropped when empty), the legacy alias and any invite are stripped, and
// the result replaces the current address without a history entry.
func (s *Synchronizer) RoomChanged(roomID string) {
	u, err := s.addr.Current()
	if err != nil {
		s.setErr(err)
		return
	}
	q := u.Query()
	if roomID == "" {
		q.Del(paramRoom)
	} else {
		q.Set(paramRoom, roomID)
	}
	q.Del(paramDoc)
	q.Del(paramInvite)
	u.RawQuery = q.Encode()

	if err := s.addr.Replace(u); err != nil {
		s.setErr(err)
	}
}

// Err returns the last user-visible failure, if any. Directory failures land
// here instead of escaping.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close detaches the identity subscription.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	sub := s.identSub
	s.mu.Unlock()
	sub.Cancel()
}

// consumeInvite spends the parked invite: at most one join attempt ever, and
// the invite parameter leaves the address once the attempt resolves so a
// reload cannot replay it.
func (s *Synchronizer) consumeInvite(p identity.Principal) {
	s.mu.Lock()
	invite := s.pendingInvite
	if invite == "" || s.inviteSpent {
		s.mu.Unlock()
		return
	}
	s.inviteSpent = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	roomID, err := s.joiner.JoinByInvite(ctx, p, invite)
	if err != nil {
		s.log.Info("urlstate.invite.fail", "err", err)
		s.setErr(err)
		s.stripInvite()
		return
	}

	s.log.Info("urlstate.invite.join", "room_id", roomID)
	s.rooms.SetRoom(roomID)
	// RoomChanged strips the invite along with the rewrite.
	s.RoomChanged(roomID)
}

// stripInvite removes only the invite parameter, leaving the rest of the
// address intact (failure path: no room was selected).
func (s *Synchronizer) stripInvite() {
	u, err := s.addr.Current()
	if err != nil {
		s.setErr(err)
		return
	}
	q := u.Query()
	if q.Get(paramInvite) == "" {
		return
	}
	q.Del(paramInvite)
	u.RawQuery = q.Encode()
	if err := s.addr.Replace(u); err != nil {
		s.setErr(err)
	}
}

func (s *Synchronizer) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
