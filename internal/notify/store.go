// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package notify persists user notifications and pushes them to live
// realtime sessions through the event broker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// Key prefixes in BadgerDB. The list key embeds an inverted timestamp so
// iteration yields newest first; the id key is a secondary index for
// read-state updates.
const (
	notifyKeyPrefix   = "notify:"
	notifyIDKeyPrefix = "notify_id:"
)

// ErrNotificationNotFound is returned when no notification matches the id.
var ErrNotificationNotFound = errors.New("notification not found")

// Store persists notifications in BadgerDB.
type Store struct {
	db *badger.DB
}

// NewStore creates a badger-backed notification store.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func listKey(userID string, n *wire.Notification) []byte {
	inverted := uint64(math.MaxInt64 - n.CreatedAt.UnixNano())
	return []byte(fmt.Sprintf("%s%s:%020d:%s", notifyKeyPrefix, userID, inverted, n.ID))
}

func idKey(userID, notificationID string) []byte {
	return []byte(notifyIDKeyPrefix + userID + ":" + notificationID)
}

// Save persists a notification for a user.
func (s *Store) Save(ctx context.Context, userID string, n *wire.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := listKey(userID, n)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set notification: %w", err)
		}
		// Secondary index: id -> list key, for read-state updates.
		if err := txn.Set(idKey(userID, n.ID), key); err != nil {
			return fmt.Errorf("set notification index: %w", err)
		}
		return nil
	})
}

// ListByUser returns up to limit notifications, newest first. limit <= 0
// returns all.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*wire.Notification, error) {
	var out []*wire.Notification

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(notifyKeyPrefix + userID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var n wire.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return fmt.Errorf("read notification: %w", err)
			}
			out = append(out, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flips the read flag of one notification. Marking an already
// read notification is a no-op, not an error.
func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		idx, err := txn.Get(idKey(userID, notificationID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotificationNotFound
		}
		if err != nil {
			return fmt.Errorf("get notification index: %w", err)
		}

		var key []byte
		if err := idx.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return fmt.Errorf("read notification index: %w", err)
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotificationNotFound
		}
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}

		var n wire.Notification
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		}); err != nil {
			return fmt.Errorf("read notification: %w", err)
		}
		if n.Read {
			return nil
		}

		n.Read = true
		data, err := json.Marshal(&n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		return txn.Set(key, data)
	})
}

// UnreadCount returns the number of unread notifications for a user.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	all, err := s.ListByUser(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range all {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
