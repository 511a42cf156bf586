// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package realtime

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// notifyEvent mirrors notify.PushEvent to avoid a circular import. The
// structure is the wire shape published on the notification subjects.
type notifyEvent struct {
	UserID       string            `json:"user_id"`
	Notification wire.Notification `json:"notification"`
}

// MessageSource delivers raw broker payloads for a subject pattern. It
// allows the bridge to run against NATS or an in-process fake in tests.
type MessageSource interface {
	// Subscribe subscribes to a subject pattern and returns a channel of
	// message payloads.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	// Close releases resources.
	Close() error
}

// Bridge forwards notification events from the broker to each recipient's
// per-user room. It is the path by which a notification created on one
// server instance reaches a websocket held by another.
type Bridge struct {
	hub     *Hub
	source  MessageSource
	subject string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBridge creates a broker to websocket bridge.
func NewBridge(hub *Hub, source MessageSource, subject string) *Bridge {
	return &Bridge{
		hub:     hub,
		source:  source,
		subject: subject,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins consuming notification events and forwarding them to the
// hub. Calling Start on a running bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	messages, err := b.source.Subscribe(ctx, b.subject)
	if err != nil {
		return err
	}

	go b.processMessages(ctx, messages)

	logging.Info().Str("subject", b.subject).Msg("notification bridge started")
	return nil
}

// Stop stops the bridge and waits for the forwarding loop to exit.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh
	logging.Info().Msg("notification bridge stopped")
}

func (b *Bridge) processMessages(ctx context.Context, messages <-chan []byte) {
	defer close(b.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			b.handleMessage(data)
		}
	}
}

// handleMessage decodes one notification event and pushes it to the
// recipient's room. Messages for users without a live connection fall on
// an empty room and are dropped by the hub.
func (b *Bridge) handleMessage(data []byte) {
	var event notifyEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logging.Warn().Err(err).Msg("failed to unmarshal notification event")
		return
	}
	if event.UserID == "" {
		logging.Debug().Msg("discarding notification event without recipient")
		return
	}

	b.hub.BroadcastRoom(wire.UserRoom(event.UserID), wire.Envelope{
		Event: wire.EventNotification,
		Data:  event.Notification,
	}, nil)
}
