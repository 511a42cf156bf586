// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package broker establishes the event broker connection at process start.
// NATS JetStream is Harmonia's event storage backbone: interaction signals
// and notification pushes flow through it, and its streams are the durable
// record the signal store is built from.
//
// Connection establishment is bounded-retry and non-fatal: if the broker is
// unreachable after the configured attempts the process continues in a
// degraded posture so health and diagnostic endpoints stay reachable.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/metrics"
)

// Connector owns the broker connection for the process lifetime.
type Connector struct {
	cfg config.BrokerConfig

	mu       sync.RWMutex
	conn     *nats.Conn
	js       nats.JetStreamContext
	embedded *server.Server
	attempts int
	degraded bool
}

// Connect attempts to establish the broker connection, retrying up to
// cfg.ConnectAttempts times with cfg.ConnectDelay between attempts.
// Exhaustion does not return an error: the connector is returned in a
// degraded state and the caller continues without persistence.
func Connect(ctx context.Context, cfg config.BrokerConfig) *Connector {
	c := &Connector{cfg: cfg}
	defer func() {
		metrics.SetBrokerDegraded(c.degraded)
		metrics.SetBrokerConnectAttempts(c.attempts)
	}()

	url := cfg.URL
	if cfg.Embedded {
		var err error
		url, err = c.startEmbedded()
		if err != nil {
			logging.Error().Err(err).Msg("embedded broker failed to start")
			c.degraded = true
			return c
		}
	}
	if url == "" {
		logging.Warn().Msg("no broker configured; persistence-dependent operations disabled")
		c.degraded = true
		return c
	}

	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		c.attempts = attempt

		conn, err := c.dial(url)
		if err == nil {
			js, jsErr := conn.JetStream()
			if jsErr == nil {
				c.conn = conn
				c.js = js
				logging.Info().
					Int("attempt", attempt).
					Str("url", conn.ConnectedUrl()).
					Msg("broker connected")
				return c
			}
			conn.Close()
			err = jsErr
		}

		logging.Error().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.ConnectAttempts).
			Msg("broker connection attempt failed")

		if attempt == cfg.ConnectAttempts {
			break
		}
		select {
		case <-time.After(cfg.ConnectDelay):
		case <-ctx.Done():
			logging.Warn().Msg("broker connection canceled")
			c.degraded = true
			return c
		}
	}

	logging.Error().
		Int("attempts", c.attempts).
		Msg("broker unreachable; continuing without persistence")
	c.degraded = true
	return c
}

// dial opens a NATS connection with the standing error observer attached.
// Runtime connection errors after the initial connect are logged, never
// fatal; reconnection is handled by the client library.
func (c *Connector) dial(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("harmonia"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("broker disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("broker reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			event := logging.Error().Err(err)
			if sub != nil {
				event = event.Str("subject", sub.Subject)
			}
			event.Msg("broker runtime error")
		}),
	)
}

// startEmbedded runs an in-process NATS server with JetStream enabled and
// returns its client URL.
func (c *Connector) startEmbedded() (string, error) {
	opts := &server.Options{
		ServerName: "harmonia-embedded",
		JetStream:  true,
		StoreDir:   c.cfg.StoreDir,
		Port:       -1, // random available port
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return "", fmt.Errorf("create embedded server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		return "", fmt.Errorf("embedded server not ready")
	}

	c.embedded = srv
	logging.Info().Str("url", srv.ClientURL()).Msg("embedded broker started")
	return srv.ClientURL(), nil
}

// EnsureStream creates the interaction event stream when it does not exist.
// No-op in degraded mode.
func (c *Connector) EnsureStream(subjects ...string) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return nil
	}

	_, err := js.StreamInfo(c.cfg.StreamName)
	if err == nil {
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     c.cfg.StreamName,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.cfg.StreamName, err)
	}
	logging.Info().Str("stream", c.cfg.StreamName).Msg("event stream created")
	return nil
}

// Conn returns the live connection, or nil in degraded mode.
func (c *Connector) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// JetStream returns the JetStream context, or nil in degraded mode.
func (c *Connector) JetStream() nats.JetStreamContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// Degraded reports whether the process is running without a broker.
func (c *Connector) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// Attempts returns how many connection attempts were made at startup.
func (c *Connector) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// Close drains the connection and stops the embedded server if one runs.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.embedded != nil {
		c.embedded.Shutdown()
		c.embedded = nil
	}
}
