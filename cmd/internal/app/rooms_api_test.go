package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loom/cmd/internal/auth"
	"loom/cmd/internal/directory"
)

type stubVerifier struct{}

func (stubVerifier) Verify(token string, _ time.Time) (auth.Claims, error) {
	if token == "" || token == "bad" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.Claims{UserID: "user-" + token}, nil
}

func newTestRoomsAPI(t *testing.T) *http.ServeMux {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := directory.NewService(log, directory.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api, err := NewRoomsAPI(log, svc, stubVerifier{})
	if err != nil {
		t.Fatalf("NewRoomsAPI: %v", err)
	}
	mux := http.NewServeMux()
	api.Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}

func TestRoomsAPICreateThenJoin(t *testing.T) {
	t.Parallel()

	mux := newTestRoomsAPI(t)

	rr, created := doJSON(t, mux, http.MethodPost, "/v1/rooms", "alice", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	key, _ := created["key"].(string)
	roomID, _ := created["room_id"].(string)
	if key == "" || roomID == "" {
		t.Fatalf("create response missing fields: %v", created)
	}

	// Another principal joins with the key, case-insensitively.
	rr, joined := doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "bob", map[string]string{"key": "  " + key + " "})
	if rr.Code != http.StatusOK {
		t.Fatalf("join status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got, _ := joined["room_id"].(string); got != roomID {
		t.Fatalf("joined room=%q want %q", got, roomID)
	}

	// The member can now read the room.
	rr, fetched := doJSON(t, mux, http.MethodGet, "/v1/rooms/"+roomID, "bob", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got, _ := fetched["room_id"].(string); got != roomID {
		t.Fatalf("fetched room=%q want %q", got, roomID)
	}

	// A stranger cannot; a room they are not in looks like no room at all.
	rr, _ = doJSON(t, mux, http.MethodGet, "/v1/rooms/"+roomID, "mallory", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("stranger get status=%d want 404", rr.Code)
	}
}

func TestRoomsAPIJoinErrors(t *testing.T) {
	t.Parallel()

	mux := newTestRoomsAPI(t)

	rr, _ := doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "alice", map[string]string{"key": "ZZZZZZ"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown key status=%d want 404", rr.Code)
	}

	rr, _ = doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "alice", map[string]string{"key": "   "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank key status=%d want 400", rr.Code)
	}

	rr, _ = doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "", map[string]string{"key": "ABC123"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d want 401", rr.Code)
	}

	rr, _ = doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "bad", map[string]string{"key": "ABC123"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d want 401", rr.Code)
	}
}

func TestRoomsAPIJoinByInviteURL(t *testing.T) {
	t.Parallel()

	mux := newTestRoomsAPI(t)

	rr, created := doJSON(t, mux, http.MethodPost, "/v1/rooms", "alice", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	key, _ := created["key"].(string)
	roomID, _ := created["room_id"].(string)

	invite := "https://app.example/?invite=" + key
	rr, joined := doJSON(t, mux, http.MethodPost, "/v1/rooms/join", "bob", map[string]string{"invite": invite})
	if rr.Code != http.StatusOK {
		t.Fatalf("invite join status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got, _ := joined["room_id"].(string); got != roomID {
		t.Fatalf("joined room=%q want %q", got, roomID)
	}
}

func TestRoomsAPIUnconfigured(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := directory.NewService(log, directory.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api, err := NewRoomsAPI(log, svc, nil)
	if err != nil {
		t.Fatalf("NewRoomsAPI: %v", err)
	}
	mux := http.NewServeMux()
	api.Register(mux)

	rr, body := doJSON(t, mux, http.MethodPost, "/v1/rooms", "alice", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
	if msg, _ := body["error"].(string); msg != "room service is not configured" {
		t.Fatalf("error=%q, message must be static", msg)
	}
}
