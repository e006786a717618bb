package identity

import "sync"

// TokenSource exposes the current bearer token to the transport layer.
// It returns "" while signed out.
type TokenSource func() string

// Manager tracks the current authenticated principal.
//
// Concurrency model:
// - All state is guarded by a mutex so Manager is safe to share, but the
//   intended discipline is a single logical thread of control per client.
// - Notification is synchronous; listener order is unspecified. Callbacks
//   must not call back into the Manager.
type Manager struct {
	mu        sync.Mutex
	current   Principal
	signedIn  bool
	nextSubID int
	subs      map[int]func(Principal, bool)
}

// Subscription is an explicit handle for a change listener.
// Cancel is idempotent and guarantees no callback execution after it returns.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel detaches the listener.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// NewManager constructs a Manager with no principal.
func NewManager() *Manager {
	return &Manager{subs: make(map[int]func(Principal, bool))}
}

// Set installs a new principal (sign-in or token refresh) and notifies subscribers.
func (m *Manager) Set(p Principal) {
	m.mu.Lock()
	m.current = p
	m.signedIn = p.Valid()
	fns := m.snapshotSubs()
	cur, ok := m.current, m.signedIn
	m.mu.Unlock()

	for _, fn := range fns {
		fn(cur, ok)
	}
}

// Clear destroys the current principal (sign-out or expiry) and notifies subscribers.
func (m *Manager) Clear() {
	m.Set(Principal{})
}

// Current returns the current principal and whether one is authenticated.
func (m *Manager) Current() (Principal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.signedIn
}

// Subscribe registers a change listener and returns its handle.
// The listener fires on every Set/Clear with the new principal.
func (m *Manager) Subscribe(fn func(p Principal, signedIn bool)) *Subscription {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()

	return &Subscription{cancel: func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}}
}

// TokenSource returns a TokenSource reading the live token.
// The transport layer calls it at handshake time so a refreshed token is
// picked up without re-wiring.
func (m *Manager) TokenSource() TokenSource {
	return func() string {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.signedIn {
			return ""
		}
		return m.current.Token
	}
}

func (m *Manager) snapshotSubs() []func(Principal, bool) {
	out := make([]func(Principal, bool), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}
