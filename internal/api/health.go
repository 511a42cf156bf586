// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/broker"
)

// HealthHandler serves liveness and readiness probes. These endpoints stay
// reachable in broker-degraded mode: a missing broker curtails features,
// it does not make the process unhealthy.
type HealthHandler struct {
	connector *broker.Connector
	started   time.Time
	version   string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(connector *broker.Connector, version string) *HealthHandler {
	return &HealthHandler{
		connector: connector,
		started:   time.Now().UTC(),
		version:   version,
	}
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Uptime  string       `json:"uptime"`
	Broker  brokerStatus `json:"broker"`
}

type brokerStatus struct {
	Connected bool `json:"connected"`
	Degraded  bool `json:"degraded"`
	Attempts  int  `json:"connect_attempts"`
}

// Health handles GET /api/v1/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Broker:  h.brokerStatus(),
	}
	if resp.Broker.Degraded {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Live handles GET /api/v1/health/live: the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles GET /api/v1/health/ready. Broker degradation is reported
// but does not flip readiness; the HTTP surface still serves.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ready",
		"broker": h.brokerStatus(),
	})
}

func (h *HealthHandler) brokerStatus() brokerStatus {
	if h.connector == nil {
		return brokerStatus{Degraded: true}
	}
	degraded := h.connector.Degraded()
	return brokerStatus{
		Connected: !degraded,
		Degraded:  degraded,
		Attempts:  h.connector.Attempts(),
	}
}
