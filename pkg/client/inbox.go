// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"sync"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Inbox is the client-side ordered notification collection. Pushed entries
// are prepended so the newest notification displays first. MarkRead flips
// the local flag immediately and sends a best-effort announcement to the
// server; no rollback happens if the announcement is lost.
type Inbox struct {
	mu      sync.RWMutex
	entries []wire.Notification

	// markRead, when set, announces the read state to the server. Errors
	// are absorbed; the local flag is authoritative for display.
	markRead func(notificationID string) error
}

// NewInbox returns an empty inbox. markRead may be nil for a purely local
// inbox (e.g. before the realtime session is up).
func NewInbox(markRead func(notificationID string) error) *Inbox {
	return &Inbox{markRead: markRead}
}

// Push prepends n. A re-push of an already known id is ignored so replayed
// events do not duplicate entries.
func (in *Inbox) Push(n wire.Notification) {
	if n.ID == "" {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, e := range in.entries {
		if e.ID == n.ID {
			return
		}
	}
	in.entries = append([]wire.Notification{n}, in.entries...)
}

// MarkRead flips the local read flag for id and announces it to the server.
// Unknown ids are a no-op. The send failure, if any, is discarded.
func (in *Inbox) MarkRead(id string) {
	in.mu.Lock()
	found := false
	for i := range in.entries {
		if in.entries[i].ID == id {
			in.entries[i].Read = true
			found = true
			break
		}
	}
	cb := in.markRead
	in.mu.Unlock()

	if found && cb != nil {
		_ = cb(id)
	}
}

// All returns the notifications newest-first.
func (in *Inbox) All() []wire.Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]wire.Notification, len(in.entries))
	copy(out, in.entries)
	return out
}

// Unread derives the unread count from the entries rather than keeping a
// separate counter that could drift.
func (in *Inbox) Unread() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	count := 0
	for _, e := range in.entries {
		if !e.Read {
			count++
		}
	}
	return count
}

// Clear drops every entry.
func (in *Inbox) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.entries = nil
}
