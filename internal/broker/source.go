// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/harmonia-fm/harmonia/internal/logging"
)

// Source adapts a core NATS subscription to a payload channel. It backs
// the realtime notification bridge, which only needs raw bytes.
type Source struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSource creates a message source over an established connection.
func NewSource(conn *nats.Conn) *Source {
	return &Source{conn: conn}
}

// Subscribe subscribes to a subject pattern and returns a channel of
// payloads. The channel closes when the context is canceled.
func (s *Source) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("no broker connection")
	}

	out := make(chan []byte, 64)

	// Unsubscribe does not wait for an in-flight callback invocation, so
	// the close must be fenced against concurrent sends: the callback and
	// the canceler share a lock, and sends after the close are dropped.
	var deliverMu sync.Mutex
	closed := false

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if closed {
			return
		}
		select {
		case out <- msg.Data:
		default:
			logging.Warn().Str("subject", msg.Subject).Msg("source channel full, dropping message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		deliverMu.Lock()
		closed = true
		close(out)
		deliverMu.Unlock()
	}()

	return out, nil
}

// Close unsubscribes every active subscription.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	return nil
}
