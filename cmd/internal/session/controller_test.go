package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"loom/cmd/identity"
	"loom/cmd/internal/presence"
	v1 "loom/shared/contracts/collab/v1"
)

// fakeConn is a scriptable transport connection.
type fakeConn struct {
	mu        sync.Mutex
	closed    bool
	published []v1.Descriptor
	sent      [][]byte
	events    chan Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan Event, 16)}
}

func (c *fakeConn) LocalConnID() string  { return "local-1" }
func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) PublishAwareness(d v1.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, d)
	return nil
}

func (c *fakeConn) SendDocUpdate(update []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent = append(c.sent, update)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) publishedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// fakeTransport hands out fakeConns and records dial order.
type fakeTransport struct {
	mu    sync.Mutex
	dials []string // room ids in dial order
	conns []*fakeConn
	err   error

	// gate, when non-nil, blocks Connect until released.
	gate chan struct{}
}

func (t *fakeTransport) Connect(_ context.Context, roomID, token string) (Conn, error) {
	// A gated dial ignores cancellation on purpose: it models a handshake
	// that completes after its session has already been superseded.
	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials = append(t.dials, roomID)
	if t.err != nil {
		return nil, t.err
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, tr Transport, tokens identity.TokenSource) (*Controller, *presence.Aggregator) {
	t.Helper()
	agg := presence.NewAggregator()
	c, err := NewController(discardLogger(), tr, tokens, agg, "Ada")
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	return c, agg
}

func staticToken(tok string) identity.TokenSource {
	return func() string { return tok }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerIdleWithoutInputs(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c, _ := newTestController(t, tr, staticToken(""))

	c.SetRoom("room-1")
	if got := c.StateNow(); got != StateIdle {
		t.Fatalf("state=%v want idle without token", got)
	}
	if tr.dialCount() != 0 {
		t.Fatal("no token must mean no dial")
	}

	c2, _ := newTestController(t, tr, staticToken("tok"))
	c2.SetRoom("")
	if got := c2.StateNow(); got != StateIdle {
		t.Fatalf("state=%v want idle without room", got)
	}
	if tr.dialCount() != 0 {
		t.Fatal("no room must mean no dial")
	}
}

func TestControllerConnectLifecycle(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c, agg := newTestController(t, tr, staticToken("tok"))

	var mu sync.Mutex
	var statuses []string
	sub := c.SubscribeStatus(func(s string) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})
	defer sub.Cancel()

	c.SetRoom("room-a")

	if got := c.Status(); got != v1.StatusConnecting {
		t.Fatalf("status=%q want connecting before handshake completes", got)
	}

	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)

	// The local descriptor is published without waiting for connected.
	waitFor(t, "awareness publish", func() bool { return conn.publishedCount() == 1 })

	conn.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}
	waitFor(t, "connected", func() bool { return c.Status() == v1.StatusConnected })

	if got := c.StateNow(); got != StateConnected {
		t.Fatalf("state=%v want connected", got)
	}

	// Peers show up through awareness events.
	conn.events <- Event{Kind: EventAwareness, ConnID: "peer-1", Descriptor: v1.Descriptor{Name: "Grace", Color: "#fff"}}
	waitFor(t, "participant", func() bool { return len(agg.Participants()) == 1 })

	conn.events <- Event{Kind: EventPeerGone, ConnID: "peer-1"}
	waitFor(t, "peer gone", func() bool { return len(agg.Participants()) == 0 })

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) < 2 || statuses[0] != v1.StatusConnecting || statuses[1] != v1.StatusConnected {
		t.Fatalf("statuses=%v want [connecting connected ...]", statuses)
	}
}

func TestControllerRoomSwitchTearsDownFirst(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c, agg := newTestController(t, tr, staticToken("tok"))

	c.SetRoom("room-a")
	waitFor(t, "first dial", func() bool { return tr.dialCount() == 1 })
	first := tr.conn(0)
	first.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}
	first.events <- Event{Kind: EventAwareness, ConnID: "peer-1", Descriptor: v1.Descriptor{Name: "Grace"}}
	waitFor(t, "peer in room a", func() bool { return len(agg.Participants()) == 1 })

	c.SetRoom("room-b")

	// The old session is fully gone before anything of the new one lands.
	if !first.isClosed() {
		t.Fatal("first conn must be closed synchronously on room switch")
	}
	if n := len(agg.Participants()); n != 0 {
		t.Fatalf("participants=%d, presence from room a must not leak into room b", n)
	}

	waitFor(t, "second dial", func() bool { return tr.dialCount() == 2 })
	second := tr.conn(1)
	second.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}
	waitFor(t, "reconnected", func() bool { return c.Status() == v1.StatusConnected })
}

func TestControllerStaleConnectDiscarded(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{gate: make(chan struct{})}
	c, _ := newTestController(t, tr, staticToken("tok"))

	c.SetRoom("room-a")
	// The dial for room-a is stuck behind the gate; switching to "" tears the
	// pending session down and bumps the generation.
	c.SetRoom("")
	if got := c.StateNow(); got != StateIdle {
		t.Fatalf("state=%v want idle", got)
	}

	close(tr.gate)
	waitFor(t, "stale dial completion", func() bool { return tr.dialCount() == 1 })

	// The late completion's conn belongs to a dead generation: it must be
	// closed and must not resurrect the session.
	waitFor(t, "stale conn closed", func() bool {
		conn := tr.conn(0)
		return conn != nil && conn.isClosed()
	})
	if got := c.StateNow(); got != StateIdle {
		t.Fatalf("state=%v, stale completion must not change state", got)
	}
}

func TestControllerTransportDropIsStatusOnly(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c, _ := newTestController(t, tr, staticToken("tok"))

	c.SetRoom("room-a")
	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)
	conn.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}
	waitFor(t, "connected", func() bool { return c.Status() == v1.StatusConnected })

	// Simulate the gateway dropping the socket.
	_ = conn.Close()
	waitFor(t, "disconnected", func() bool { return c.Status() == v1.StatusDisconnected })

	// No auto-reconnect: one dial total.
	time.Sleep(20 * time.Millisecond)
	if tr.dialCount() != 1 {
		t.Fatalf("dials=%d, a drop must not trigger a reconnect", tr.dialCount())
	}
}

func TestControllerConnectFailure(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{err: errors.New("boom")}
	c, _ := newTestController(t, tr, staticToken("tok"))

	c.SetRoom("room-a")
	waitFor(t, "failure surfaced", func() bool { return c.StateNow() == StateDisconnected })
	if got := c.Status(); got != v1.StatusDisconnected {
		t.Fatalf("status=%q want disconnected", got)
	}
}

func TestControllerSignOutTearsDown(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	m := identity.NewManager()
	m.Set(identity.Principal{ID: "u1", Token: "tok"})

	agg := presence.NewAggregator()
	c, err := NewController(discardLogger(), tr, m.TokenSource(), agg, "Ada")
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()
	c.BindIdentity(m)

	c.SetRoom("room-a")
	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)
	conn.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}
	waitFor(t, "connected", func() bool { return c.Status() == v1.StatusConnected })

	m.Clear()

	waitFor(t, "teardown on sign-out", func() bool { return conn.isClosed() })
	if got := c.StateNow(); got != StateIdle {
		t.Fatalf("state=%v want idle after sign-out", got)
	}
}

func TestControllerDocUpdateFanOut(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c, _ := newTestController(t, tr, staticToken("tok"))

	got := make(chan []byte, 1)
	sub := c.SubscribeDocUpdates(func(u []byte) { got <- u })
	defer sub.Cancel()

	c.SetRoom("room-a")
	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)
	conn.events <- Event{Kind: EventDocUpdate, ConnID: "peer-1", DocUpdate: []byte{1, 2, 3}}

	select {
	case u := <-got:
		if len(u) != 3 || u[0] != 1 {
			t.Fatalf("update=%v want [1 2 3]", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("doc update not delivered")
	}

	// Outbound relaying goes through the live conn.
	waitFor(t, "conn installed", func() bool { return c.SendDocUpdate([]byte{9}) == nil })
	conn.mu.Lock()
	sent := len(conn.sent)
	conn.mu.Unlock()
	if sent == 0 {
		t.Fatal("outbound update not relayed")
	}
}

func TestControllerCloseJoinsCallbacks(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	agg := presence.NewAggregator()
	c, err := NewController(discardLogger(), tr, staticToken("tok"), agg, "Ada")
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sub := c.SubscribeStatus(func(s string) {
		if s == v1.StatusConnected {
			once.Do(func() { close(entered) })
			<-release
		}
	})
	defer sub.Cancel()

	c.SetRoom("room-a")
	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)
	conn.events <- Event{Kind: EventStatus, Status: v1.StatusConnected}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("status callback never entered")
	}

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	// Close joins in-flight callbacks: it must not return while one is
	// still executing.
	select {
	case <-done:
		t.Fatal("Close returned while a status callback was still executing")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the callback finished")
	}
}

func TestControllerCloseIsTerminal(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	agg := presence.NewAggregator()
	c, err := NewController(discardLogger(), tr, staticToken("tok"), agg, "Ada")
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	c.SetRoom("room-a")
	waitFor(t, "dial", func() bool { return tr.dialCount() == 1 })
	conn := tr.conn(0)

	c.Close()

	waitFor(t, "conn closed", func() bool { return conn.isClosed() })
	if err := c.SendDocUpdate([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}

	// SetRoom after Close is a no-op.
	c.SetRoom("room-b")
	time.Sleep(20 * time.Millisecond)
	if tr.dialCount() != 1 {
		t.Fatalf("dials=%d, closed controller must not dial", tr.dialCount())
	}
}
