// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Thresholds for classifying a resolved play session. A position under 30%
// of the track counts as a skip; 90% or more counts as a complete; anything
// between emits nothing.
const (
	skipThreshold     = 30.0
	completeThreshold = 90.0
)

const trackInteractionPath = "/recommendations/track"

// interactionSender is the outbound surface the tracker needs; *Transport
// satisfies it.
type interactionSender interface {
	PostJSON(ctx context.Context, path string, body any) error
}

type playSession struct {
	startedAt time.Time
	duration  float64
}

// InteractionTracker converts raw playback telemetry into discrete
// recommendation signals. Sends are best-effort and throttled: transport
// failures are logged at debug and discarded, never surfaced to playback.
type InteractionTracker struct {
	sender  interactionSender
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	sessions map[string]playSession

	now func() time.Time
}

// NewInteractionTracker wraps sender. The throttle admits short bursts and
// then spaces sends out instead of dropping them.
func NewInteractionTracker(sender interactionSender, logger zerolog.Logger) *InteractionTracker {
	return &InteractionTracker{
		sender:   sender,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		sessions: make(map[string]playSession),
		now:      time.Now,
	}
}

// Play opens a session for musicID with the track's known duration in
// seconds and immediately emits a play signal carrying no completion data.
func (t *InteractionTracker) Play(musicID string, duration float64) {
	t.mu.Lock()
	t.sessions[musicID] = playSession{startedAt: t.now(), duration: duration}
	t.mu.Unlock()

	t.send(wire.TrackInteraction{
		MusicID:         musicID,
		InteractionType: wire.InteractionPlay,
	})
}

// Skip resolves the session for musicID at playback position currentTime
// (seconds). A skip signal goes out only when the completion rate is under
// the skip threshold; the session is cleared either way.
func (t *InteractionTracker) Skip(musicID string, currentTime float64) {
	session := t.takeSession(musicID)
	r := completionRate(currentTime, session.duration)
	if r >= skipThreshold {
		return
	}
	t.send(wire.TrackInteraction{
		MusicID:         musicID,
		InteractionType: wire.InteractionSkip,
		Duration:        int(math.Floor(currentTime)),
		CompletionRate:  int(math.Floor(r)),
	})
}

// Complete resolves the session for musicID at playback position
// currentTime. A complete signal goes out only when the completion rate
// reaches the complete threshold; its duration field is the elapsed listen
// time since Play, not the playback position. The session is cleared either
// way.
func (t *InteractionTracker) Complete(musicID string, currentTime float64) {
	session := t.takeSession(musicID)
	r := completionRate(currentTime, session.duration)
	if r < completeThreshold {
		return
	}
	listened := 0
	if !session.startedAt.IsZero() {
		listened = int(math.Floor(t.now().Sub(session.startedAt).Seconds()))
	}
	t.send(wire.TrackInteraction{
		MusicID:         musicID,
		InteractionType: wire.InteractionComplete,
		Duration:        listened,
		CompletionRate:  int(math.Floor(r)),
	})
}

// Like emits a like signal. No session state is involved.
func (t *InteractionTracker) Like(musicID string) {
	t.send(wire.TrackInteraction{
		MusicID:         musicID,
		InteractionType: wire.InteractionLike,
	})
}

// Share emits a share signal. No session state is involved.
func (t *InteractionTracker) Share(musicID string) {
	t.send(wire.TrackInteraction{
		MusicID:         musicID,
		InteractionType: wire.InteractionShare,
	})
}

// Clear drops the session for musicID without emitting anything.
func (t *InteractionTracker) Clear(musicID string) {
	t.mu.Lock()
	delete(t.sessions, musicID)
	t.mu.Unlock()
}

// takeSession removes and returns the session for musicID. A missing
// session yields the zero session, whose duration of 0 collapses the
// completion rate to 0.
func (t *InteractionTracker) takeSession(musicID string) playSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	session := t.sessions[musicID]
	delete(t.sessions, musicID)
	return session
}

// completionRate is the percentage of duration reached at currentTime.
// A non-positive duration collapses to 0, which keeps skip always eligible
// and complete never eligible for such tracks.
func completionRate(currentTime, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return currentTime / duration * 100
}

func (t *InteractionTracker) send(interaction wire.TrackInteraction) {
	if t.sender == nil {
		return
	}
	go func() {
		if err := t.limiter.Wait(context.Background()); err != nil {
			return
		}
		if err := t.sender.PostJSON(context.Background(), trackInteractionPath, interaction); err != nil {
			t.logger.Debug().Err(err).
				Str("music_id", interaction.MusicID).
				Str("type", interaction.InteractionType).
				Msg("interaction signal dropped")
		}
	}()
}
