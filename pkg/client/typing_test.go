// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"testing"
	"time"
)

func hasTypingUser(users []TypingUser, userID string) bool {
	for _, u := range users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

func TestTypingTrackerDebounce(t *testing.T) {
	tracker := NewTypingTracker(80 * time.Millisecond)
	defer tracker.Stop()

	tracker.Touch("u1", "alice")
	time.Sleep(50 * time.Millisecond)

	// A second signal inside the window resets the deadline instead of
	// adding a second entry.
	tracker.Touch("u1", "alice")
	if users := tracker.Active(); len(users) != 1 {
		t.Fatalf("active = %d entries, want 1", len(users))
	}

	// Past the first signal's deadline but inside the second's: still
	// visible.
	time.Sleep(50 * time.Millisecond)
	if !hasTypingUser(tracker.Active(), "u1") {
		t.Fatal("entry expired before the last signal's window elapsed")
	}

	// Past the second signal's deadline: gone.
	time.Sleep(80 * time.Millisecond)
	if hasTypingUser(tracker.Active(), "u1") {
		t.Fatal("entry survived its expiry window")
	}
}

func TestTypingTrackerIndependentUsers(t *testing.T) {
	tracker := NewTypingTracker(60 * time.Millisecond)
	defer tracker.Stop()

	tracker.Touch("u1", "alice")
	time.Sleep(40 * time.Millisecond)
	tracker.Touch("u2", "bob")

	time.Sleep(40 * time.Millisecond)
	users := tracker.Active()
	if hasTypingUser(users, "u1") {
		t.Fatal("u1 should have expired")
	}
	if !hasTypingUser(users, "u2") {
		t.Fatal("u2 expired too early")
	}
}

func TestTypingTrackerContinuousSignalsKeepUserVisible(t *testing.T) {
	// A signal arriving while an expiry callback is already in flight must
	// not let that callback remove the entry: the deadline re-check keeps
	// the user visible as long as signals keep coming.
	tracker := NewTypingTracker(50 * time.Millisecond)
	defer tracker.Stop()

	tracker.Touch("u1", "alice")
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				tracker.Touch("u1", "alice")
				time.Sleep(time.Millisecond)
			}
		}
	}()

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !hasTypingUser(tracker.Active(), "u1") {
			close(stop)
			<-done
			t.Fatal("user vanished while typing signals were arriving continuously")
		}
		time.Sleep(2 * time.Millisecond)
	}
	close(stop)
	<-done
}

func TestTypingTrackerRemoveIdempotent(t *testing.T) {
	tracker := NewTypingTracker(time.Second)
	defer tracker.Stop()

	tracker.Touch("u1", "alice")
	tracker.Remove("u1")
	tracker.Remove("u1")
	tracker.Remove("unknown")

	if len(tracker.Active()) != 0 {
		t.Fatal("tracker not empty after removal")
	}
}

func TestTypingTrackerOnChange(t *testing.T) {
	tracker := NewTypingTracker(time.Second)
	defer tracker.Stop()

	var calls int
	tracker.OnChange = func([]TypingUser) { calls++ }

	tracker.Touch("u1", "alice")
	tracker.Touch("u1", "alice") // reset, not a visible-set mutation
	tracker.Remove("u1")

	if calls != 2 {
		t.Fatalf("OnChange fired %d times, want 2 (add, remove)", calls)
	}
}

func TestTypingTrackerStopIgnoresLateSignals(t *testing.T) {
	tracker := NewTypingTracker(time.Second)
	tracker.Touch("u1", "alice")
	tracker.Stop()

	tracker.Touch("u2", "bob")
	if len(tracker.Active()) != 0 {
		t.Fatal("signal accepted after Stop")
	}
}
