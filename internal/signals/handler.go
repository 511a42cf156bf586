// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package signals

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Handler accepts interaction signals over HTTP. The normal path publishes
// to the broker; when the broker is degraded it writes straight to the
// local store so signals are not lost silently.
type Handler struct {
	publisher *Publisher
	store     *Store
	validate  *validator.Validate
}

// NewHandler creates the signal ingestion handler. Either dependency may
// be nil when its backend is unavailable.
func NewHandler(publisher *Publisher, store *Store) *Handler {
	return &Handler{
		publisher: publisher,
		store:     store,
		validate:  validator.New(),
	}
}

// Track handles POST /recommendations/track. Requires authentication.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	var req wire.TrackInteraction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	sig := &Signal{
		ID:             uuid.NewString(),
		UserID:         claims.UserID,
		Track:          req.MusicID,
		Type:           req.InteractionType,
		Duration:       req.Duration,
		CompletionRate: req.CompletionRate,
		Weight:         Confidence(req.InteractionType),
		CreatedAt:      time.Now().UTC(),
	}

	switch {
	case h.publisher != nil:
		if err := h.publisher.Publish(r.Context(), sig); err != nil {
			logging.Warn().Err(err).Str("track_id", sig.Track).Msg("signal publish failed")
			if !h.saveDirect(r, sig) {
				writeError(w, http.StatusServiceUnavailable, "signal ingestion unavailable")
				return
			}
		}
	case h.store != nil:
		if !h.saveDirect(r, sig) {
			writeError(w, http.StatusServiceUnavailable, "signal ingestion unavailable")
			return
		}
	default:
		writeError(w, http.StatusServiceUnavailable, "signal ingestion unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "id": sig.ID})
}

// saveDirect is the broker-degraded fallback.
func (h *Handler) saveDirect(r *http.Request, sig *Signal) bool {
	if h.store == nil {
		return false
	}
	if err := h.store.Save(r.Context(), sig); err != nil {
		logging.Error().Err(err).Str("signal_id", sig.ID).Msg("direct signal save failed")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
