// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
)

// ErrRefreshNotFound is returned for unknown, expired, or revoked refresh
// tokens. Callers treat all three identically: the session is terminal.
var ErrRefreshNotFound = errors.New("refresh token not found")

const refreshKeyPrefix = "refresh:"

// refreshRecord is the stored form of a refresh token. Only the bcrypt hash
// of the secret half crosses into storage.
type refreshRecord struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	SecretHash []byte    `json:"secret_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RefreshStore persists refresh tokens in BadgerDB, hashed at rest.
type RefreshStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewRefreshStore creates a refresh token store on top of an open badger DB.
func NewRefreshStore(db *badger.DB, ttl time.Duration) *RefreshStore {
	return &RefreshStore{db: db, ttl: ttl}
}

// Save stores a freshly minted refresh token for the given identity.
func (s *RefreshStore) Save(ctx context.Context, token RefreshToken, claims *Claims) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token.Secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash refresh secret: %w", err)
	}

	record := refreshRecord{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Email:      claims.Email,
		Role:       claims.Role,
		SecretHash: hash,
		ExpiresAt:  time.Now().Add(s.ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(refreshKeyPrefix+token.ID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

// Redeem verifies a presented refresh token and deletes it, returning the
// identity it was issued for. A redeemed token never verifies again; the
// caller is expected to mint and Save a replacement (token rotation).
func (s *RefreshStore) Redeem(ctx context.Context, token RefreshToken) (*Claims, error) {
	var record refreshRecord

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(refreshKeyPrefix + token.ID)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRefreshNotFound
		}
		if err != nil {
			return fmt.Errorf("get refresh record: %w", err)
		}

		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return fmt.Errorf("decode refresh record: %w", err)
		}

		if time.Now().After(record.ExpiresAt) {
			// Badger TTL lags wall-clock expiry slightly; enforce it here.
			_ = txn.Delete(key)
			return ErrRefreshNotFound
		}

		if bcrypt.CompareHashAndPassword(record.SecretHash, []byte(token.Secret)) != nil {
			return ErrRefreshNotFound
		}

		// Single use: rotation happens in the handler.
		return txn.Delete(key)
	})
	if err != nil {
		return nil, err
	}

	return &Claims{
		UserID:   record.UserID,
		Username: record.Username,
		Email:    record.Email,
		Role:     record.Role,
	}, nil
}

// Revoke deletes a refresh token without redeeming it (logout).
func (s *RefreshStore) Revoke(ctx context.Context, tokenID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(refreshKeyPrefix + tokenID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
