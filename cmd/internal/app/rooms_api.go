package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"loom/cmd/identity"
	"loom/cmd/internal/auth"
	"loom/cmd/internal/directory"
)

// RoomsAPI is the HTTP surface of the room directory.
//
// Join is a privileged RPC: the key lookup happens server-side against the
// full room table, but the caller only ever learns the one room id their key
// resolved to.
type RoomsAPI struct {
	log      *slog.Logger
	svc      *directory.Service
	verifier auth.Verifier
}

// NewRoomsAPI constructs the handler. verifier may be nil when no token key
// is configured; every endpoint then answers 503.
func NewRoomsAPI(log *slog.Logger, svc *directory.Service, verifier auth.Verifier) (*RoomsAPI, error) {
	if log == nil || svc == nil {
		return nil, errors.New("app: nil dependency for rooms api")
	}
	return &RoomsAPI{log: log, svc: svc, verifier: verifier}, nil
}

// Register mounts the room endpoints on mux.
func (h *RoomsAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/rooms", h.handleCreate)
	mux.HandleFunc("POST /v1/rooms/join", h.handleJoin)
	mux.HandleFunc("GET /v1/rooms/{id}", h.handleGet)
}

type roomResponse struct {
	RoomID    string    `json:"room_id"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type joinRequest struct {
	// Key is a room key; Invite may be a key or a URL carrying one.
	Key    string `json:"key"`
	Invite string `json:"invite"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *RoomsAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	room, err := h.svc.CreateRoom(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, roomResponse{
		RoomID:    room.ID,
		Key:       room.Key,
		CreatedAt: room.CreatedAt,
	})
}

func (h *RoomsAPI) handleJoin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req joinRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	var roomID string
	var err error
	switch {
	case strings.TrimSpace(req.Invite) != "":
		roomID, err = h.svc.JoinByInvite(r.Context(), p, req.Invite)
	default:
		roomID, err = h.svc.JoinByKey(r.Context(), p, req.Key)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, roomResponse{RoomID: roomID})
}

func (h *RoomsAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	room, err := h.svc.GetRoom(r.Context(), p, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, roomResponse{
		RoomID:    room.ID,
		Key:       room.Key,
		CreatedAt: room.CreatedAt,
	})
}

// principal authenticates the request. A false return means the response has
// already been written.
func (h *RoomsAPI) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	if h.verifier == nil {
		// Feature-level outage, not a caller mistake: keep the message static.
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "room service is not configured"})
		return identity.Principal{}, false
	}

	token := bearerFromHeader(r)
	if token == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return identity.Principal{}, false
	}

	claims, err := h.verifier.Verify(token, time.Now().UTC())
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		return identity.Principal{}, false
	}

	return identity.Principal{ID: claims.UserID, Label: claims.Label, Token: token}, true
}

func (h *RoomsAPI) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrRoomNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found"})
	case errors.Is(err, directory.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid key"})
	case errors.Is(err, directory.ErrAuthRequired):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
	default:
		h.log.Error("rooms.api.fail", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "room directory failure"})
	}
}

func (h *RoomsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("rooms.api.encode.fail", "err", err)
	}
}

func bearerFromHeader(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if v == "" {
		return ""
	}
	parts := strings.Fields(v)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
