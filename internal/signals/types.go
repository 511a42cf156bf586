// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package signals ingests listening interaction events for the
// recommendation profile: validated HTTP payloads are published to the
// event broker and a pipeline consumer persists them with per-type
// confidence weights.
package signals

import (
	"time"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Confidence returns the implicit-feedback weight of an interaction type.
// Higher values indicate stronger positive signal. Skip is non-zero to
// avoid singularities in downstream factorization.
func Confidence(interactionType string) float64 {
	switch interactionType {
	case wire.InteractionComplete:
		return 1.0
	case wire.InteractionShare:
		return 0.9
	case wire.InteractionLike:
		return 0.8
	case wire.InteractionPlay:
		return 0.2
	case wire.InteractionSkip:
		return 0.1
	default:
		return 0.0
	}
}

// Signal is one persisted user-track interaction.
type Signal struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Track  string `json:"track_id"`
	Type   string `json:"type"`

	// Duration is listened seconds; CompletionRate is percent of track
	// length. Both are only meaningful for skip and complete.
	Duration       int `json:"duration,omitempty"`
	CompletionRate int `json:"completion_rate,omitempty"`

	// Weight is the confidence weight of Type, fixed at ingestion time so
	// historical signals keep their original weighting if the table changes.
	Weight float64 `json:"weight"`

	CreatedAt time.Time `json:"created_at"`
}

// SubjectFor derives the broker subject for an interaction type,
// e.g. "events.interaction.play".
func SubjectFor(prefix, interactionType string) string {
	return prefix + "." + interactionType
}
