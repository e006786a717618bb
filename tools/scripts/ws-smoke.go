// Package main provides a CI-friendly WebSocket smoke test for Loom realtime.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello_ack with a connection id
//   - awareness_state snapshot on join
//   - awareness fanout to another client
//   - doc_update relay (sender excluded)
//   - peer_gone on disconnect
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "loom/shared/contracts/collab/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name   string
	conn   *websocket.Conn
	connID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		roomID  = flag.String("room", "dev-room-1", "Room ID to connect to")
		tokenA  = flag.String("token-a", "", "Bearer token for client A")
		tokenB  = flag.String("token-b", "", "Bearer token for client B")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if *tokenA == "" || *tokenB == "" {
		fatalf("both -token-a and -token-b are required")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *roomID, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *roomID, *tokenB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s room=%q origin=%q\n", a.connID, b.connID, *roomID, *origin)
	}

	// A publishes its descriptor; B must observe it with A's connection id.
	mustPublishAwareness(root, a, "Smoke A", *timeout)
	mustObserveAwareness(root, b, a.connID, "Smoke A", *timeout)

	// A relays a doc update; B receives it, A must not see its own echo.
	update := []byte(fmt.Sprintf("smoke-%d", time.Now().UnixNano()))
	mustSendDocUpdate(root, a, update, *timeout)
	mustObserveDocUpdate(root, b, a.connID, update, *timeout)
	mustAssertNoType(root, a, v1.TypeDocUpdate, 1200*time.Millisecond)

	// B leaves; A must see peer_gone for B's connection.
	closeWS(b.conn)
	mustObservePeerGone(root, a, b.connID, *timeout)

	fmt.Printf("OK: A=%s B=%s room=%s\n", a.connID, b.connID, *roomID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, roomID, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.ConnID) == "" {
		fatalf("hello_ack missing conn_id (%s)", name)
	}
	c.connID = p.ConnID

	// The snapshot follows the ack; content depends on who joined first.
	skip := map[string]struct{}{v1.TypeAwarenessUpdate: {}}
	_ = c.mustReadUntilType(parent, v1.TypeAwarenessState, stepTimeout, skip)

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustPublishAwareness(parent context.Context, c *smokeClient, name string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeAwarenessUpdate,
		ID:   fmt.Sprintf("%s-awareness", c.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.AwarenessUpdatePayload{
			Descriptor: v1.Descriptor{Name: name},
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustObserveAwareness(parent context.Context, c *smokeClient, wantConnID, wantName string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		env := c.mustReadUntilType(ctx, v1.TypeAwarenessUpdate, stepTimeout, nil)

		var p v1.AwarenessUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal awareness_update payload (%s): %v", c.name, err)
		}
		// Other peers' updates may interleave; wait for the one we expect.
		if p.ConnID != wantConnID {
			continue
		}
		if p.Descriptor.Name != wantName {
			fatalf("awareness name mismatch (%s): got=%q want=%q", c.name, p.Descriptor.Name, wantName)
		}
		if strings.TrimSpace(p.Descriptor.Color) == "" {
			fatalf("awareness missing color (%s)", c.name)
		}
		return
	}
}

func mustSendDocUpdate(parent context.Context, c *smokeClient, update []byte, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeDocUpdate,
		ID:   fmt.Sprintf("%s-doc", c.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.DocUpdatePayload{
			Update: update,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustObserveDocUpdate(parent context.Context, c *smokeClient, wantConnID string, wantUpdate []byte, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeDocUpdate, stepTimeout, map[string]struct{}{v1.TypeAwarenessUpdate: {}})

	var p v1.DocUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal doc_update payload (%s): %v", c.name, err)
	}
	if p.ConnID != wantConnID {
		fatalf("doc_update sender mismatch (%s): got=%q want=%q", c.name, p.ConnID, wantConnID)
	}
	if string(p.Update) != string(wantUpdate) {
		fatalf("doc_update content mismatch (%s)", c.name)
	}
}

func mustObservePeerGone(parent context.Context, c *smokeClient, wantConnID string, stepTimeout time.Duration) {
	skip := map[string]struct{}{v1.TypeAwarenessUpdate: {}, v1.TypeAwarenessState: {}}
	env := c.mustReadUntilType(parent, v1.TypePeerGone, stepTimeout, skip)

	var p v1.PeerGonePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal peer_gone payload (%s): %v", c.name, err)
	}
	if p.ConnID != wantConnID {
		fatalf("peer_gone conn_id mismatch (%s): got=%q want=%q", c.name, p.ConnID, wantConnID)
	}
}

func mustAssertNoType(parent context.Context, c *smokeClient, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if env.Type == forbiddenType {
				fatalf("unexpected %s received (%s)", forbiddenType, c.name)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
