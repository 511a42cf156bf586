// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package signals

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/metrics"
)

// MessageSource delivers watermill messages for a topic. The pipeline runs
// against the JetStream subscriber in production and a fake in tests.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// NewSubscriber creates a durable JetStream subscriber bound to the
// interaction stream. Queue-group subscription balances consumption across
// server instances.
func NewSubscriber(url string, cfg config.BrokerConfig, logger watermill.LoggerAdapter) (MessageSource, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("signal subscriber disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("signal subscriber reconnected")
		}),
	}

	// Bind to the pre-created stream: the topic is a wildcard and stream
	// names cannot contain wildcards, so auto-provisioning would fail.
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(3),
		natsgo.AckWait(30 * time.Second),
		natsgo.DeliverNew(),
		natsgo.BindStream(cfg.StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    "harmonia-signals",
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// Pipeline consumes published interaction events and persists them. It is
// the write side of the recommendation profile.
type Pipeline struct {
	source MessageSource
	store  *Store
	topic  string

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewPipeline creates a pipeline reading topic from source into store.
func NewPipeline(source MessageSource, store *Store, topic string) *Pipeline {
	return &Pipeline{source: source, store: store, topic: topic}
}

// RunWithContext consumes until the context is canceled or the message
// channel closes. Designed for suture supervision.
func (p *Pipeline) RunWithContext(ctx context.Context) error {
	messages, err := p.source.Subscribe(ctx, p.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.topic, err)
	}

	logging.Info().Str("topic", p.topic).Msg("signal pipeline started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Uint64("processed", p.processed.Load()).
				Uint64("failed", p.failed.Load()).
				Msg("signal pipeline stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			p.handleMessage(ctx, msg)
		}
	}
}

// handleMessage persists one event. Malformed payloads are acked so the
// broker does not redeliver garbage; store failures are nacked for retry.
func (p *Pipeline) handleMessage(ctx context.Context, msg *message.Message) {
	var sig Signal
	if err := json.Unmarshal(msg.Payload, &sig); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("discarding malformed signal")
		p.failed.Add(1)
		metrics.RecordSignalFailed()
		msg.Ack()
		return
	}

	if sig.Weight == 0 {
		sig.Weight = Confidence(sig.Type)
	}

	if err := p.store.Save(ctx, &sig); err != nil {
		logging.Error().Err(err).Str("signal_id", sig.ID).Msg("persist signal failed")
		p.failed.Add(1)
		metrics.RecordSignalFailed()
		msg.Nack()
		return
	}

	p.processed.Add(1)
	metrics.RecordSignalPersisted()
	msg.Ack()
}

// Stats reports processed and failed message counts.
func (p *Pipeline) Stats() (processed, failed uint64) {
	return p.processed.Load(), p.failed.Load()
}
