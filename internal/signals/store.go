// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package signals

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout in BadgerDB. The created-at nanosecond component keeps keys
// for one user in insertion order under badger's lexicographic iteration.
const signalKeyPrefix = "signal:"

// ErrNoStore is returned when signal persistence is disabled.
var ErrNoStore = errors.New("signal store disabled")

// Store persists interaction signals in BadgerDB.
type Store struct {
	db *badger.DB
}

// NewStore creates a badger-backed signal store.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func signalKey(s *Signal) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", signalKeyPrefix, s.UserID, s.CreatedAt.UnixNano(), s.ID))
}

// Save persists one signal.
func (s *Store) Save(ctx context.Context, sig *Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(signalKey(sig), data); err != nil {
			return fmt.Errorf("set signal: %w", err)
		}
		return nil
	})
}

// ListByUser returns up to limit signals for a user in insertion order.
// limit <= 0 returns all.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	var out []*Signal

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(signalKeyPrefix + userID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var sig Signal
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sig)
			}); err != nil {
				return fmt.Errorf("read signal: %w", err)
			}
			out = append(out, &sig)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Profile aggregates per-track confidence for a user: the sum of the
// weights of every recorded signal, keyed by track id. It is the raw
// implicit-feedback vector handed to the recommendation engine.
func (s *Store) Profile(ctx context.Context, userID string) (map[string]float64, error) {
	signals, err := s.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	profile := make(map[string]float64, len(signals))
	for _, sig := range signals {
		profile[sig.Track] += sig.Weight
	}
	return profile, nil
}
