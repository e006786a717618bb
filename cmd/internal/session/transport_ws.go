package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	v1 "loom/shared/contracts/collab/v1"

	"github.com/coder/websocket"
)

const (
	wsDialTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsEventQueue   = 64
)

// WebsocketTransport connects to a Loom gateway over websocket.
type WebsocketTransport struct {
	// BaseURL is the gateway endpoint, e.g. "ws://localhost:8080/ws".
	BaseURL string
}

// NewWebsocketTransport constructs a transport for the given gateway URL.
func NewWebsocketTransport(baseURL string) (*WebsocketTransport, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("session: empty gateway url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("session: bad gateway url: %w", err)
	}
	return &WebsocketTransport{BaseURL: baseURL}, nil
}

// Connect dials the gateway for one room. The bearer token travels in the
// Authorization header; the room id in the query string.
func (t *WebsocketTransport) Connect(ctx context.Context, roomID, token string) (Conn, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(token) == "" {
		return nil, errors.New("session: room id and token required")
	}

	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	wc := &wsConn{
		conn:   conn,
		events: make(chan Event, wsEventQueue),
	}
	wc.ctx, wc.cancel = context.WithCancel(context.Background())

	go wc.readLoop()
	return wc, nil
}

// wsConn adapts one websocket connection to the Conn interface.
type wsConn struct {
	conn   *websocket.Conn
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	localID string
	closed  bool
}

func (c *wsConn) LocalConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

func (c *wsConn) Events() <-chan Event { return c.events }

func (c *wsConn) PublishAwareness(d v1.Descriptor) error {
	payload, err := json.Marshal(v1.AwarenessUpdatePayload{Descriptor: d})
	if err != nil {
		return err
	}
	return c.write(v1.TypeAwarenessUpdate, payload)
}

func (c *wsConn) SendDocUpdate(update []byte) error {
	if len(update) == 0 {
		return errors.New("session: empty doc update")
	}
	payload, err := json.Marshal(v1.DocUpdatePayload{Update: update})
	if err != nil {
		return err
	}
	return c.write(v1.TypeDocUpdate, payload)
}

// Close is idempotent; it ends the read loop, which closes the event channel.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *wsConn) write(typ string, payload json.RawMessage) error {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      newEventID(),
		TS:      time.Now().UTC(),
		Payload: payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, wsWriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

// readLoop turns gateway envelopes into transport events.
// The dial itself succeeding is reported as a connected status once the
// hello_ack arrives; any terminal read error degrades to a disconnect via
// channel closure.
func (c *wsConn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Validate() != nil {
			continue
		}

		switch env.Type {
		case v1.TypeHelloAck:
			var p v1.HelloAckPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.mu.Lock()
			c.localID = p.ConnID
			c.mu.Unlock()
			c.emit(Event{Kind: EventStatus, Status: v1.StatusConnected})

		case v1.TypeAwarenessUpdate:
			var p v1.AwarenessUpdatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.emit(Event{Kind: EventAwareness, ConnID: p.ConnID, Descriptor: p.Descriptor})

		case v1.TypeAwarenessState:
			var p v1.AwarenessStatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.emit(Event{Kind: EventAwarenessState, State: p.Entries})

		case v1.TypePeerGone:
			var p v1.PeerGonePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.emit(Event{Kind: EventPeerGone, ConnID: p.ConnID})

		case v1.TypeDocUpdate:
			var p v1.DocUpdatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.emit(Event{Kind: EventDocUpdate, ConnID: p.ConnID, DocUpdate: p.Update})
		}
	}
}

// emit never blocks the read loop; under backpressure events are dropped the
// same way the gateway drops broadcasts.
func (c *wsConn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func newEventID() string {
	// Wire ids only need uniqueness for tracing.
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
