// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package notify

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Handler serves the notification HTTP surface.
type Handler struct {
	service *Service
}

// NewHandler creates the notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// listResponse is the GET /notifications body.
type listResponse struct {
	Notifications []*wire.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// List handles GET /notifications. Auth is optional: with an identity the
// response is that user's notifications, without one it is an empty page.
// The optional limit query bounds the page size.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims, authenticated := auth.IdentityFromContext(r.Context())
	if !authenticated {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(listResponse{Notifications: []*wire.Notification{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	notifications, err := h.service.List(r.Context(), claims.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list notifications failed")
		return
	}

	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listResponse{Notifications: notifications, Unread: unread})
}

// MarkRead handles PUT /notifications/{id}/read, the HTTP fallback for
// clients without a live websocket. The flip is optimistic: the response
// is 204 regardless of whether the notification existed.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	h.service.MarkRead(r.Context(), claims.UserID, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
