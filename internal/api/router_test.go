// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/notify"
	"github.com/harmonia-fm/harmonia/internal/realtime"
	"github.com/harmonia-fm/harmonia/internal/signals"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// setupRouter wires the full route tree against in-memory backends and
// returns it together with a token manager for minting test credentials.
func setupRouter(t *testing.T) (http.Handler, *auth.TokenManager) {
	t.Helper()

	db := openTestDB(t)
	tokens := auth.NewTokenManager(config.SecurityConfig{
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})

	hub := realtime.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()

	cfg := config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}

	router := NewRouter(
		cfg,
		auth.NewMiddleware(tokens),
		auth.NewHandler(tokens, auth.NewRefreshStore(db, 24*time.Hour)),
		signals.NewHandler(nil, signals.NewStore(db)),
		notify.NewHandler(notify.NewService(notify.NewStore(db), nil)),
		realtime.NewHandler(hub, config.RealtimeConfig{SendBuffer: 16}, nil),
		NewHealthHandler(nil, "test"),
	)
	return router.Setup(), tokens
}

func bearerFor(t *testing.T, tokens *auth.TokenManager) string {
	t.Helper()
	token, err := tokens.Issue("u1", "alice", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + token
}

func TestHealthReachableWithoutAuth(t *testing.T) {
	router, _ := setupRouter(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestHealthReportsDegradedBroker(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if !resp.Broker.Degraded {
		t.Error("broker not reported degraded")
	}
}

func TestDataEndpointsRequireAuth(t *testing.T) {
	router, _ := setupRouter(t)

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/recommendations/track"},
		{http.MethodPut, "/api/v1/notifications/n1/read"},
		{http.MethodGet, "/api/v1/ws"},
	}

	for _, req := range requests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(req.method, req.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", req.method, req.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestNotificationsListAuthOptional(t *testing.T) {
	router, _ := setupRouter(t)

	// Anonymous: 200 with an empty page.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d, want %d", w.Code, http.StatusOK)
	}

	// A garbage bearer is swallowed, not rejected.
	r := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("invalid-token status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNotificationsWithToken(t *testing.T) {
	router, tokens := setupRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	r.Header.Set("Authorization", bearerFor(t, tokens))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestTrackInteractionWithToken(t *testing.T) {
	router, tokens := setupRouter(t)

	body := `{"musicId":"t1","interactionType":"play"}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations/track", strings.NewReader(body))
	r.Header.Set("Authorization", bearerFor(t, tokens))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusAccepted, w.Body.String())
	}
}

func TestRefreshEndpointRejectsGarbage(t *testing.T) {
	router, _ := setupRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refreshToken":"junk"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "harmonia_") {
		t.Error("metrics output missing harmonia collectors")
	}
}
