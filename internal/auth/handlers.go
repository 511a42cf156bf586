// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package auth

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Handler exposes the credential exchange endpoints consumed by the
// resilient client transport.
type Handler struct {
	tokens *TokenManager
	store  *RefreshStore
}

// NewHandler creates the auth HTTP handler. store may be nil when the
// process runs without storage; refresh then always fails with 401, which
// clients treat as a terminal session.
func NewHandler(tokens *TokenManager, store *RefreshStore) *Handler {
	return &Handler{tokens: tokens, store: store}
}

// Refresh handles POST /auth/refresh. It redeems the presented refresh
// token, issues a new access token, and rotates the refresh token. Any
// failure is a 401: the client clears credentials and re-authenticates.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req wire.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "Unauthorized: refresh token required", http.StatusUnauthorized)
		return
	}

	if h.store == nil {
		http.Error(w, "Unauthorized: refresh unavailable", http.StatusUnauthorized)
		return
	}

	token, err := ParseRefreshToken(req.RefreshToken)
	if err != nil {
		http.Error(w, "Unauthorized: invalid refresh token", http.StatusUnauthorized)
		return
	}

	claims, err := h.store.Redeem(r.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrRefreshNotFound) {
			logging.Error().Err(err).Msg("refresh token redemption failed")
		}
		http.Error(w, "Unauthorized: invalid refresh token", http.StatusUnauthorized)
		return
	}

	access, err := h.tokens.Issue(claims.UserID, claims.Username, claims.Email, claims.Role)
	if err != nil {
		logging.Error().Err(err).Msg("access token issue failed")
		http.Error(w, "Unauthorized: token issue failed", http.StatusUnauthorized)
		return
	}

	rotated, err := NewRefreshToken()
	if err != nil {
		logging.Error().Err(err).Msg("refresh token mint failed")
		http.Error(w, "Unauthorized: token issue failed", http.StatusUnauthorized)
		return
	}
	if err := h.store.Save(r.Context(), rotated, claims); err != nil {
		logging.Error().Err(err).Msg("refresh token save failed")
		http.Error(w, "Unauthorized: token issue failed", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, wire.RefreshResponse{
		Token:        access,
		RefreshToken: rotated.String(),
	})
}

// writeJSON encodes v and sends it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encode failed")
	}
}
