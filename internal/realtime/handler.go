// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
)

// Handler upgrades authenticated HTTP requests to websocket sessions.
type Handler struct {
	hub *Hub
	cfg config.RealtimeConfig

	// allowedOrigins restricts browser connections. Empty allows all,
	// which is the local-development default.
	allowedOrigins []string
}

// NewHandler creates a websocket upgrade handler bound to the hub.
func NewHandler(hub *Hub, cfg config.RealtimeConfig, allowedOrigins []string) *Handler {
	return &Handler{hub: hub, cfg: cfg, allowedOrigins: allowedOrigins}
}

// upgrader builds a websocket upgrader with origin checking and a handshake
// timeout so a slow client cannot pin the accept path.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates the Origin header against the configured allow list.
// Non-browser clients omit Origin and are accepted; they already passed
// bearer authentication.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}

// ServeWS upgrades the request and starts the client pumps. The route must
// sit behind auth.RequireAuth so an identity is present on the context.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, claims, h.cfg.SendBuffer)
	client.Start()
}
