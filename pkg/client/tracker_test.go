// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

type captureSender struct {
	sent chan wire.TrackInteraction
	err  error
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan wire.TrackInteraction, 16)}
}

func (c *captureSender) PostJSON(_ context.Context, _ string, body any) error {
	c.sent <- body.(wire.TrackInteraction)
	return c.err
}

func (c *captureSender) wait(t *testing.T) wire.TrackInteraction {
	t.Helper()
	select {
	case interaction := <-c.sent:
		return interaction
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interaction")
		return wire.TrackInteraction{}
	}
}

func (c *captureSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case interaction := <-c.sent:
		t.Fatalf("unexpected interaction: %+v", interaction)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestTracker(sender interactionSender) *InteractionTracker {
	return NewInteractionTracker(sender, zerolog.Nop())
}

func TestTrackerPlayEmitsImmediately(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 180)
	got := sender.wait(t)
	if got.InteractionType != wire.InteractionPlay || got.MusicID != "m1" {
		t.Fatalf("interaction = %+v", got)
	}
	if got.Duration != 0 || got.CompletionRate != 0 {
		t.Fatalf("play carried completion data: %+v", got)
	}
}

func TestTrackerSkipBelowThreshold(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 100)
	sender.wait(t) // play

	tracker.Skip("m1", 20)
	got := sender.wait(t)
	if got.InteractionType != wire.InteractionSkip {
		t.Fatalf("type = %s, want skip", got.InteractionType)
	}
	if got.Duration != 20 || got.CompletionRate != 20 {
		t.Fatalf("skip payload = %+v, want duration 20 rate 20", got)
	}
}

func TestTrackerSkipAtOrAboveThresholdEmitsNothing(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 100)
	sender.wait(t)

	// Exactly at the 30% boundary: no skip.
	tracker.Skip("m1", 30)
	sender.expectNone(t)

	// The session was cleared even though nothing was emitted, so a later
	// skip sees no duration and collapses to rate 0.
	tracker.Skip("m1", 50)
	got := sender.wait(t)
	if got.CompletionRate != 0 || got.Duration != 50 {
		t.Fatalf("post-clear skip payload = %+v", got)
	}
}

func TestTrackerCompleteUsesListenTime(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.Play("m1", 100)
	sender.wait(t)

	tracker.now = func() time.Time { return base.Add(12 * time.Second) }
	tracker.Complete("m1", 95)
	got := sender.wait(t)
	if got.InteractionType != wire.InteractionComplete {
		t.Fatalf("type = %s, want complete", got.InteractionType)
	}
	if got.Duration != 12 {
		t.Fatalf("duration = %d, want listen time 12", got.Duration)
	}
	if got.CompletionRate != 95 {
		t.Fatalf("rate = %d, want 95", got.CompletionRate)
	}
}

func TestTrackerCompleteBelowThresholdEmitsNothing(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 100)
	sender.wait(t)

	tracker.Complete("m1", 89)
	sender.expectNone(t)

	// Exactly at the 90% boundary emits.
	tracker.Play("m1", 100)
	sender.wait(t)
	tracker.Complete("m1", 90)
	if got := sender.wait(t); got.InteractionType != wire.InteractionComplete {
		t.Fatalf("type = %s, want complete at boundary", got.InteractionType)
	}
}

func TestTrackerZeroDurationCollapsesRate(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 0)
	sender.wait(t)

	// Rate collapses to 0, so skip is always eligible for such tracks.
	tracker.Skip("m1", 5)
	got := sender.wait(t)
	if got.Duration != 5 || got.CompletionRate != 0 {
		t.Fatalf("payload = %+v, want duration 5 rate 0", got)
	}

	// And complete never is.
	tracker.Play("m2", 0)
	sender.wait(t)
	tracker.Complete("m2", 5)
	sender.expectNone(t)
}

func TestTrackerLikeAndShareStateless(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Like("m1")
	if got := sender.wait(t); got.InteractionType != wire.InteractionLike {
		t.Fatalf("type = %s, want like", got.InteractionType)
	}
	tracker.Share("m1")
	if got := sender.wait(t); got.InteractionType != wire.InteractionShare {
		t.Fatalf("type = %s, want share", got.InteractionType)
	}
}

func TestTrackerSendFailuresAreSwallowed(t *testing.T) {
	sender := newCaptureSender()
	sender.err = errors.New("network down")
	tracker := newTestTracker(sender)

	// None of these panic or surface the error.
	tracker.Play("m1", 100)
	sender.wait(t)
	tracker.Like("m1")
	sender.wait(t)
	tracker.Skip("m1", 10)
	sender.wait(t)
}

func TestTrackerClearDropsSessionSilently(t *testing.T) {
	sender := newCaptureSender()
	tracker := newTestTracker(sender)

	tracker.Play("m1", 100)
	sender.wait(t)
	tracker.Clear("m1")

	// With the session gone, complete at a high position still sees
	// duration 0 and emits nothing.
	tracker.Complete("m1", 95)
	sender.expectNone(t)
}
