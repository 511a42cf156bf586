// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"errors"
	"testing"
	"time"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

func notification(id, message string) wire.Notification {
	return wire.Notification{
		ID:        id,
		Type:      "follow",
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

func TestInboxPrependOrdering(t *testing.T) {
	in := NewInbox(nil)
	in.Push(notification("n1", "first"))
	in.Push(notification("n2", "second"))
	in.Push(notification("n3", "third"))

	all := in.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "n3" || all[2].ID != "n1" {
		t.Fatalf("order = [%s %s %s], want newest first", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestInboxIgnoresDuplicatesAndEmptyIDs(t *testing.T) {
	in := NewInbox(nil)
	in.Push(notification("n1", "first"))
	in.Push(notification("n1", "replayed"))
	in.Push(wire.Notification{})

	if len(in.All()) != 1 {
		t.Fatalf("len = %d, want 1", len(in.All()))
	}
}

func TestInboxMarkReadOptimistic(t *testing.T) {
	var announced []string
	in := NewInbox(func(id string) error {
		announced = append(announced, id)
		return errors.New("server unreachable")
	})
	in.Push(notification("n1", "first"))
	in.Push(notification("n2", "second"))

	// The local flag flips even though the announcement errors.
	in.MarkRead("n1")
	if in.Unread() != 1 {
		t.Fatalf("unread = %d, want 1", in.Unread())
	}
	if len(announced) != 1 || announced[0] != "n1" {
		t.Fatalf("announced = %v, want [n1]", announced)
	}

	// Unknown ids flip nothing and announce nothing.
	in.MarkRead("missing")
	if len(announced) != 1 {
		t.Fatalf("announced = %v after unknown id", announced)
	}
}

func TestInboxUnreadDerived(t *testing.T) {
	in := NewInbox(nil)
	in.Push(notification("n1", "a"))
	in.Push(notification("n2", "b"))

	read := notification("n3", "c")
	read.Read = true
	in.Push(read)

	if in.Unread() != 2 {
		t.Fatalf("unread = %d, want 2", in.Unread())
	}

	in.Clear()
	if in.Unread() != 0 || len(in.All()) != 0 {
		t.Fatal("inbox not empty after Clear")
	}
}
