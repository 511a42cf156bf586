// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// openTestDB opens an in-memory badger instance for the test's lifetime.
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

func testClaims() *Claims {
	return &Claims{UserID: "u1", Username: "ada", Email: "ada@example.com", Role: "member"}
}

func TestRefreshStoreRedeemOnce(t *testing.T) {
	store := NewRefreshStore(openTestDB(t), time.Hour)
	ctx := context.Background()

	token, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if err := store.Save(ctx, token, testClaims()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	claims, err := store.Redeem(ctx, token)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "member" {
		t.Errorf("unexpected claims %+v", claims)
	}

	// Single use: a second redemption must fail.
	if _, err := store.Redeem(ctx, token); !errors.Is(err, ErrRefreshNotFound) {
		t.Errorf("second Redeem = %v, want ErrRefreshNotFound", err)
	}
}

func TestRefreshStoreRejectsWrongSecret(t *testing.T) {
	store := NewRefreshStore(openTestDB(t), time.Hour)
	ctx := context.Background()

	token, _ := NewRefreshToken()
	if err := store.Save(ctx, token, testClaims()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	forged := RefreshToken{ID: token.ID, Secret: "wrong-secret"}
	if _, err := store.Redeem(ctx, forged); !errors.Is(err, ErrRefreshNotFound) {
		t.Errorf("Redeem(forged) = %v, want ErrRefreshNotFound", err)
	}

	// A failed compare must not consume the record; the genuine token
	// still redeems.
	if _, err := store.Redeem(ctx, token); err != nil {
		t.Errorf("genuine token no longer redeems: %v", err)
	}
}

func TestRefreshStoreExpiry(t *testing.T) {
	store := NewRefreshStore(openTestDB(t), -time.Minute)
	ctx := context.Background()

	token, _ := NewRefreshToken()
	if err := store.Save(ctx, token, testClaims()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Redeem(ctx, token); !errors.Is(err, ErrRefreshNotFound) {
		t.Errorf("Redeem(expired) = %v, want ErrRefreshNotFound", err)
	}
}

func TestRefreshHandlerRotatesToken(t *testing.T) {
	tokens := NewTokenManager(testSecurityConfig())
	store := NewRefreshStore(openTestDB(t), time.Hour)
	handler := NewHandler(tokens, store)

	initial, _ := NewRefreshToken()
	if err := store.Save(context.Background(), initial, testClaims()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	body, _ := json.Marshal(wire.RefreshRequest{RefreshToken: initial.String()})
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp wire.RefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.RefreshToken == "" {
		t.Fatalf("incomplete response %+v", resp)
	}

	// New access token verifies.
	claims, err := tokens.Verify(resp.Token)
	if err != nil {
		t.Errorf("issued token does not verify: %v", err)
	} else if claims.UserID != "u1" {
		t.Errorf("claims = %+v", claims)
	}

	// Old refresh token is spent.
	body, _ = json.Marshal(wire.RefreshRequest{RefreshToken: initial.String()})
	rec = httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh token status = %d, want 401", rec.Code)
	}

	// Rotated refresh token works.
	body, _ = json.Marshal(wire.RefreshRequest{RefreshToken: resp.RefreshToken})
	rec = httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Errorf("rotated refresh token status = %d, want 200", rec.Code)
	}
}

func TestRefreshHandlerWithoutStore(t *testing.T) {
	handler := NewHandler(NewTokenManager(testSecurityConfig()), nil)

	body, _ := json.Marshal(wire.RefreshRequest{RefreshToken: "a.b"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
