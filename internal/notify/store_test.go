// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testNotification(message string, at time.Time) *wire.Notification {
	return &wire.Notification{
		ID:        uuid.NewString(),
		Type:      "collaboration_invite",
		Message:   message,
		CreatedAt: at,
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC()
	oldest := testNotification("first", base)
	middle := testNotification("second", base.Add(time.Second))
	newest := testNotification("third", base.Add(2*time.Second))

	for _, n := range []*wire.Notification{oldest, middle, newest} {
		if err := store.Save(ctx, "u1", n); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListByUser returned %d, want 3", len(got))
	}
	for i, want := range []string{"third", "second", "first"} {
		if got[i].Message != want {
			t.Errorf("position %d = %q, want %q", i, got[i].Message, want)
		}
	}

	limited, err := store.ListByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListByUser limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Message != "third" {
		t.Errorf("limited list = %d entries, first %q", len(limited), limited[0].Message)
	}
}

func TestStoreListIsolatesUsers(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Save(ctx, "u1", testNotification("mine", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.ListByUser(ctx, "u2", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("u2 sees %d notifications, want 0", len(got))
	}
}

func TestStoreMarkRead(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	n := testNotification("invite", time.Now().UTC())
	if err := store.Save(ctx, "u1", n); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.MarkRead(ctx, "u1", n.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Idempotent.
	if err := store.MarkRead(ctx, "u1", n.ID); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}

	got, err := store.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || !got[0].Read {
		t.Errorf("notification read flag not set: %+v", got[0])
	}

	unread, err := store.UnreadCount(ctx, "u1")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if unread != 0 {
		t.Errorf("UnreadCount = %d, want 0", unread)
	}
}

func TestStoreMarkReadUnknown(t *testing.T) {
	store := NewStore(openTestDB(t))

	err := store.MarkRead(context.Background(), "u1", "missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkRead error = %v, want ErrNotificationNotFound", err)
	}
}

func TestStoreMarkReadOtherUser(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	n := testNotification("invite", time.Now().UTC())
	if err := store.Save(ctx, "u1", n); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A different user cannot flip someone else's notification.
	err := store.MarkRead(ctx, "u2", n.ID)
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("cross-user MarkRead error = %v, want ErrNotificationNotFound", err)
	}
}
