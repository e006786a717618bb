// Package session drives the client-side realtime session lifecycle.
//
// The Controller owns at most one live session at a time, keyed by the
// (room id, token) pair. Changing either input deterministically tears the
// previous session down in full before the next one is constructed. Stale
// asynchronous completions are invalidated by a per-session generation
// marker rather than by blocking.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"loom/cmd/identity"
	"loom/cmd/internal/presence"
	v1 "loom/shared/contracts/collab/v1"
)

// Session lifecycle states.
type State uint8

const (
	// StateIdle: no session; missing room id or token.
	StateIdle State = iota
	// StateConnecting: handshake in flight; local descriptor already published.
	StateConnecting
	// StateConnected: transport reported a connected status.
	StateConnected
	// StateDisconnected: transport dropped; session object retained.
	StateDisconnected
	// StateToredDown: terminal for a session instance.
	StateToredDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateToredDown:
		return "toredown"
	}
	return "unknown"
}

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("session controller closed")

// Controller owns the connection to a room's shared channel and drives the
// session state machine.
//
// Concurrency model: all state lives behind one mutex; transport completions
// and events are funneled through methods that re-check the generation marker
// under that mutex, so a superseded session can never mutate current state.
type Controller struct {
	log       *slog.Logger
	transport Transport
	tokens    identity.TokenSource
	agg       *presence.Aggregator
	name      string

	mu     sync.Mutex
	closed bool
	gen    uint64
	roomID string

	// Live-session snapshot: the (room, token) pair the current session was
	// built from. Compared against desired inputs during reconcile.
	sessionRoomID string
	token         string
	state    State
	status   string
	conn     Conn
	cancel   context.CancelFunc
	identSub *identity.Subscription

	nextSubID int
	statusSub map[int]func(status string)
	docSub    map[int]func(update []byte)

	// notifyWG counts listener callbacks in flight so Close can join them.
	notifyWG sync.WaitGroup
}

// NewController constructs a Controller.
// name is the local participant's display label used for presence.
func NewController(log *slog.Logger, transport Transport, tokens identity.TokenSource, agg *presence.Aggregator, name string) (*Controller, error) {
	if log == nil || transport == nil || tokens == nil || agg == nil {
		return nil, errors.New("session: nil dependency")
	}
	return &Controller{
		log:       log,
		transport: transport,
		tokens:    tokens,
		agg:       agg,
		name:      name,
		state:     StateIdle,
		status:    v1.StatusDisconnected,
		statusSub: make(map[int]func(string)),
		docSub:    make(map[int]func([]byte)),
	}, nil
}

// BindIdentity subscribes the controller to principal changes so sign-out or
// token refresh reconciles the session. The returned subscription is owned by
// the controller and cancelled on Close.
func (c *Controller) BindIdentity(m *identity.Manager) {
	sub := m.Subscribe(func(_ identity.Principal, _ bool) {
		c.reconcile()
	})
	c.mu.Lock()
	c.identSub = sub
	c.mu.Unlock()
}

// SetRoom selects the active room ("" deselects) and reconciles the session.
func (c *Controller) SetRoom(roomID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.roomID = roomID
	c.mu.Unlock()

	c.reconcile()
}

// Room returns the currently selected room id.
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Status returns the user-facing status string.
// It is "disconnected" whenever no session is live.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StateNow returns the current lifecycle state.
func (c *Controller) StateNow() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubscribeStatus registers a status listener; fires on every status change.
func (c *Controller) SubscribeStatus(fn func(status string)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.statusSub[id] = fn
	c.mu.Unlock()

	return newSubscription(func() {
		c.mu.Lock()
		delete(c.statusSub, id)
		c.mu.Unlock()
	})
}

// SubscribeDocUpdates registers a listener for opaque document updates from
// peers. The controller does not interpret updates; merge semantics belong to
// the document engine.
func (c *Controller) SubscribeDocUpdates(fn func(update []byte)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.docSub[id] = fn
	c.mu.Unlock()

	return newSubscription(func() {
		c.mu.Lock()
		delete(c.docSub, id)
		c.mu.Unlock()
	})
}

// SendDocUpdate relays an opaque document update through the live session.
func (c *Controller) SendDocUpdate(update []byte) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("session: not connected")
	}
	return conn.SendDocUpdate(update)
}

// Close tears down any live session and detaches the identity subscription.
// It blocks until listener callbacks already in flight have returned, so no
// callback executes after Close. Listeners must not call Close from within a
// callback. The controller is unusable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.identSub
	c.teardownLocked()
	c.mu.Unlock()

	sub.Cancel()
	c.notifyWG.Wait()
}

// reconcile compares the desired (room, token) pair against the live session
// and tears down / rebuilds as needed. It is the single state-transition
// entrypoint for input changes.
func (c *Controller) reconcile() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	token := c.tokens()
	roomID := c.roomID

	if c.conn != nil || c.state == StateConnecting || c.state == StateConnected || c.state == StateDisconnected {
		if roomID == c.sessionRoom() && token == c.token && token != "" && roomID != "" {
			c.mu.Unlock()
			return // inputs unchanged; keep the live session
		}
		// Inputs changed: the previous session is fully torn down before any
		// successor work begins.
		c.teardownLocked()
	}

	if token == "" || roomID == "" {
		c.setStateLocked(StateIdle, v1.StatusDisconnected)
		c.agg.Clear()
		c.notifyStatusUnlock()
		return
	}

	// New session: bump the generation so completions of any older session
	// are discarded on arrival.
	c.gen++
	gen := c.gen
	c.token = token
	c.sessionRoomID = roomID

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.setStateLocked(StateConnecting, v1.StatusConnecting)

	// Publish the local participant immediately so peers can see an incoming
	// participant as soon as the handshake begins.
	local := presence.Descriptor(c.name)
	c.agg.Clear()

	c.notifyStatusUnlock()

	go c.connect(ctx, gen, roomID, token, local)
}

// connect performs the asynchronous handshake for one generation.
func (c *Controller) connect(ctx context.Context, gen uint64, roomID, token string, local v1.Descriptor) {
	conn, err := c.transport.Connect(ctx, roomID, token)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		// Superseded while connecting: the result belongs to a dead session.
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		c.setStateLocked(StateDisconnected, v1.StatusDisconnected)
		c.log.Info("session.connect.fail", "room_id", roomID, "err", err)
		c.notifyStatusUnlock()
		return
	}

	c.conn = conn
	c.mu.Unlock()

	// Descriptor publication does not wait for a "connected" status event.
	if err := conn.PublishAwareness(local); err != nil {
		c.log.Info("session.awareness.publish.fail", "err", err)
	}

	go c.pump(gen, conn)
}

// pump forwards transport events for one generation until the event channel
// closes or the generation is superseded.
func (c *Controller) pump(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		if !c.dispatch(gen, ev) {
			return
		}
	}

	// Channel closed: transport-level drop. Status only, no auto-reconnect.
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected, v1.StatusDisconnected)
	c.notifyStatusUnlock()
}

// dispatch applies one event under the generation guard.
// It returns false when the event's session is no longer current.
func (c *Controller) dispatch(gen uint64, ev Event) bool {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return false
	}

	switch ev.Kind {
	case EventStatus:
		switch ev.Status {
		case v1.StatusConnected:
			c.setStateLocked(StateConnected, v1.StatusConnected)
		case v1.StatusDisconnected:
			c.setStateLocked(StateDisconnected, v1.StatusDisconnected)
		default:
			c.status = ev.Status
		}
		c.notifyStatusUnlock()
		return true

	case EventAwareness:
		c.agg.Apply(ev.ConnID, ev.Descriptor)

	case EventAwarenessState:
		c.agg.ApplyState(ev.State)

	case EventPeerGone:
		c.agg.Remove(ev.ConnID)

	case EventDocUpdate:
		fns := make([]func([]byte), 0, len(c.docSub))
		for _, fn := range c.docSub {
			fns = append(fns, fn)
		}
		c.notifyWG.Add(1)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(ev.DocUpdate)
		}
		c.notifyWG.Done()
		return true
	}

	c.mu.Unlock()
	return true
}

// teardownLocked releases the live session: cancels the connect context,
// closes the transport handle, clears presence, and marks the session
// instance terminal. Callers hold c.mu.
func (c *Controller) teardownLocked() {
	// Invalidate all in-flight completions for the old generation first.
	c.gen++

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.token = ""
	c.sessionRoomID = ""
	c.agg.Clear()
	c.state = StateToredDown
	c.status = v1.StatusDisconnected
}

func (c *Controller) setStateLocked(s State, status string) {
	c.state = s
	c.status = status
}

// notifyStatusUnlock snapshots the status listeners, marks the notification
// in flight, releases c.mu, and runs the callbacks. Callers hold c.mu.
func (c *Controller) notifyStatusUnlock() {
	fns := make([]func(string), 0, len(c.statusSub))
	for _, fn := range c.statusSub {
		fns = append(fns, fn)
	}
	status := c.status
	c.notifyWG.Add(1)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
	c.notifyWG.Done()
}

func (c *Controller) sessionRoom() string {
	return c.sessionRoomID
}

// Subscription is an explicit listener handle; Cancel is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel detaches the listener.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
