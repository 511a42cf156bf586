// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/metrics"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// SubjectPrefix is the broker subject root for notification pushes. One
// subject per recipient keeps per-user filtering on the broker.
const SubjectPrefix = "events.notify"

// PushEvent is the broker payload for one notification push. The realtime
// bridge routes it to the recipient's per-user room.
type PushEvent struct {
	UserID       string            `json:"user_id"`
	Notification wire.Notification `json:"notification"`
}

// Service creates notifications: persist first, then push to live
// sessions. Push failures are logged, never surfaced to the caller; the
// notification is already durable and will appear on the next list fetch.
type Service struct {
	store *Store
	conn  *nats.Conn
}

// NewService creates the notification service. conn may be nil in broker
// degraded mode; notifications are then persisted without a live push.
func NewService(store *Store, conn *nats.Conn) *Service {
	return &Service{store: store, conn: conn}
}

// Create persists and pushes a notification to userID.
func (s *Service) Create(ctx context.Context, userID, notificationType, message string) (*wire.Notification, error) {
	n := &wire.Notification{
		ID:        uuid.NewString(),
		Type:      notificationType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Save(ctx, userID, n); err != nil {
			return nil, fmt.Errorf("save notification: %w", err)
		}
	}

	s.push(userID, n)
	return n, nil
}

// push publishes the notification to the recipient's subject. Best effort.
func (s *Service) push(userID string, n *wire.Notification) {
	if s.conn == nil {
		return
	}

	payload, err := json.Marshal(PushEvent{UserID: userID, Notification: *n})
	if err != nil {
		logging.Error().Err(err).Msg("marshal notification push failed")
		return
	}
	if err := s.conn.Publish(SubjectPrefix+"."+userID, payload); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("notification push failed")
		return
	}
	metrics.RecordNotificationPushed()
}

// MarkRead applies a read-state flip. It implements the optimistic
// contract of mark-notification-read: the caller has already updated its
// local view, so failures here are logged and absorbed.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) {
	if s.store == nil {
		return
	}
	if err := s.store.MarkRead(ctx, userID, notificationID); err != nil {
		logging.Warn().
			Err(err).
			Str("user_id", userID).
			Str("notification_id", notificationID).
			Msg("mark notification read failed")
	}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*wire.Notification, error) {
	if s.store == nil {
		return []*wire.Notification{}, nil
	}
	return s.store.ListByUser(ctx, userID, limit)
}
