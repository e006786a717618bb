package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: 201, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: 307, wantLevel: slog.LevelInfo, wantResult: "redirect", wantClass: "3xx"},
		{status: 401, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 409, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 500, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}

func TestWithCORSPreflightOnRoomsAPI(t *testing.T) {
	cfg := Config{
		CORSAllowedOrigins:   []string{"https://loom.example.com"},
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    300,
	}

	h := WithCORS(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("next handler should not run for preflight")
	}), cfg, discardLog())

	req := httptest.NewRequest(http.MethodOptions, "/v1/rooms", nil)
	req.Header.Set("Origin", "https://loom.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d want=204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://loom.example.com" {
		t.Fatalf("allow-origin=%q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow-credentials=%q", got)
	}
}

func TestWithCORSDeniesUnknownOrigin(t *testing.T) {
	cfg := Config{
		CORSAllowedOrigins: []string{"https://loom.example.com"},
	}

	called := false
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), cfg, discardLog())

	req := httptest.NewRequest(http.MethodPost, "/v1/rooms/join", nil)
	req.Header.Set("Origin", "https://attacker.example.net")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d want=403", rr.Code)
	}
	if called {
		t.Fatal("next handler must not run for a denied origin")
	}
}

func TestWithCORSWildcardPortForDevClient(t *testing.T) {
	// Local dev clients bind ephemeral ports; "host:*" admits any of them.
	cfg := Config{
		CORSAllowedOrigins: []string{"http://localhost:*"},
	}

	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), cfg, discardLog())

	req := httptest.NewRequest(http.MethodGet, "/v1/rooms/r1", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want=204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want=204", rr.Code)
	}
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := rr.Header().Get(header); got != value {
			t.Fatalf("%s=%q want=%q", header, got, value)
		}
	}
}
