// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"sync"
	"time"
)

// DefaultTypingExpiry is how long a typing entry stays visible after the
// last signal for that user.
const DefaultTypingExpiry = 3 * time.Second

// TypingUser is one visible typing entry.
type TypingUser struct {
	UserID   string
	Username string
}

type typingEntry struct {
	username string
	deadline time.Time
	timer    *time.Timer
}

// TypingTracker maintains the set of users currently typing in a room.
// A repeat signal for a user resets that user's expiry instead of adding a
// second entry, so the user stays visible until the last signal's window
// elapses.
type TypingTracker struct {
	mu      sync.Mutex
	expiry  time.Duration
	entries map[string]*typingEntry
	stopped bool

	// OnChange, when set, is called after every visible-set mutation with
	// the new snapshot. Called without the tracker lock held.
	OnChange func(users []TypingUser)
}

// NewTypingTracker returns a tracker with the given expiry window; expiry
// <= 0 selects DefaultTypingExpiry.
func NewTypingTracker(expiry time.Duration) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingTracker{
		expiry:  expiry,
		entries: make(map[string]*typingEntry),
	}
}

// Touch records a typing signal for userID. If the user is already present
// the expiry deadline is reset; otherwise a new entry appears.
func (t *TypingTracker) Touch(userID, username string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if entry, ok := t.entries[userID]; ok {
		entry.username = username
		entry.deadline = time.Now().Add(t.expiry)
		entry.timer.Reset(t.expiry)
		t.mu.Unlock()
		return
	}
	entry := &typingEntry{username: username, deadline: time.Now().Add(t.expiry)}
	entry.timer = time.AfterFunc(t.expiry, func() {
		t.expire(userID)
	})
	t.entries[userID] = entry
	t.mu.Unlock()

	t.notify()
}

// expire is the timer callback. The entry's deadline is re-checked under
// the lock: a Touch may have reset the timer while this callback was
// already in flight, in which case the entry must stay and the timer is
// re-armed for the remainder of the new window.
func (t *TypingTracker) expire(userID string) {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if remaining := time.Until(entry.deadline); remaining > 0 {
		entry.timer.Reset(remaining)
		t.mu.Unlock()
		return
	}
	delete(t.entries, userID)
	t.mu.Unlock()

	t.notify()
}

// Remove drops userID from the visible set. Removing an absent user is a
// no-op.
func (t *TypingTracker) Remove(userID string) {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(t.entries, userID)
	t.mu.Unlock()

	t.notify()
}

// Active returns a snapshot of the users currently typing.
func (t *TypingTracker) Active() []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Stop cancels all pending expiries and empties the tracker. Signals
// received after Stop are ignored.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, id)
	}
}

func (t *TypingTracker) snapshotLocked() []TypingUser {
	users := make([]TypingUser, 0, len(t.entries))
	for id, entry := range t.entries {
		users = append(users, TypingUser{UserID: id, Username: entry.username})
	}
	return users
}

func (t *TypingTracker) notify() {
	t.mu.Lock()
	cb := t.OnChange
	users := t.snapshotLocked()
	t.mu.Unlock()
	if cb != nil {
		cb(users)
	}
}
