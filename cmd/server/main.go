// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package main is the entry point for the Harmonia realtime server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load via Koanf v2 (defaults, file, environment)
//  2. Storage: BadgerDB for interaction signals, notifications, and
//     refresh tokens
//  3. Broker: NATS JetStream connection with bounded startup retries;
//     exhaustion is non-fatal and the server continues degraded
//  4. Realtime hub: room-scoped websocket fan-out
//  5. Signal pipeline: interaction event consumer feeding the signal store
//  6. HTTP server: REST API plus the websocket upgrade endpoint
//
// Everything long-running sits under a suture supervision tree; SIGINT and
// SIGTERM trigger a graceful drain.
//
// Key environment variables: NATS_URL, JWT_SECRET, PORT, STORAGE_PATH.
// See config.example.yaml for the full surface.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/harmonia-fm/harmonia/internal/api"
	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/broker"
	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
	"github.com/harmonia-fm/harmonia/internal/notify"
	"github.com/harmonia-fm/harmonia/internal/realtime"
	"github.com/harmonia-fm/harmonia/internal/signals"
	"github.com/harmonia-fm/harmonia/internal/supervisor"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Msg("starting harmonia")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local store. Absence is a degraded posture, not a startup failure.
	db := openStorage(cfg.Storage)
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing storage")
			}
		}()
	}

	// Broker connection with bounded retries.
	conn := broker.Connect(ctx, cfg.Broker)
	defer conn.Close()
	if err := conn.EnsureStream(cfg.Signals.SubjectPrefix + ".>"); err != nil {
		logging.Error().Err(err).Msg("stream provisioning failed")
	}

	// Auth layer.
	tokens := auth.NewTokenManager(cfg.Security)
	var refreshStore *auth.RefreshStore
	if db != nil {
		refreshStore = auth.NewRefreshStore(db, cfg.Security.RefreshTokenTTL)
	}

	// Realtime hub and notification plumbing.
	hub := realtime.NewHub()
	var notifyStore *notify.Store
	if db != nil {
		notifyStore = notify.NewStore(db)
	}
	notifyService := notify.NewService(notifyStore, conn.Conn())
	hub.SetMarkRead(notifyService.MarkRead)

	// Signal ingestion: publisher and pipeline when the broker is up,
	// direct store writes otherwise.
	var signalStore *signals.Store
	if db != nil {
		signalStore = signals.NewStore(db)
	}
	var publisher *signals.Publisher
	var pipeline *signals.Pipeline
	if !conn.Degraded() {
		url := conn.Conn().ConnectedUrl()
		publisher, err = signals.NewPublisher(url, cfg.Signals, nil)
		if err != nil {
			logging.Error().Err(err).Msg("signal publisher unavailable")
		}
		if signalStore != nil {
			source, err := signals.NewSubscriber(url, cfg.Broker, nil)
			if err != nil {
				logging.Error().Err(err).Msg("signal subscriber unavailable")
			} else {
				pipeline = signals.NewPipeline(source, signalStore, cfg.Signals.SubjectPrefix+".>")
			}
		}
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Warn().Err(err).Msg("error closing signal publisher")
			}
		}()
	}

	// Notification bridge: broker pushes into per-user rooms.
	if conn.Conn() != nil {
		bridge := realtime.NewBridge(hub, broker.NewSource(conn.Conn()), notify.SubjectPrefix+".>")
		if err := bridge.Start(ctx); err != nil {
			logging.Error().Err(err).Msg("notification bridge failed to start")
		} else {
			defer bridge.Stop()
		}
	}

	// HTTP surface.
	router := api.NewRouter(
		cfg.Server,
		auth.NewMiddleware(tokens),
		auth.NewHandler(tokens, refreshStore),
		signals.NewHandler(publisher, signalStore),
		notify.NewHandler(notifyService),
		realtime.NewHandler(hub, cfg.Realtime, cfg.Server.CORSOrigins),
		api.NewHealthHandler(conn, version),
	)
	server := api.NewServer(cfg.Server, router.Setup())

	// Supervision tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewService("realtime-hub", hub))
	if pipeline != nil {
		tree.AddMessagingService(supervisor.NewService("signal-pipeline", pipeline))
	}
	tree.AddAPIService(supervisor.NewService("http-server", server))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree exited")
	}
	logging.Info().Msg("harmonia stopped")
}

// openStorage opens the badger database per configuration, or returns nil
// when persistence is disabled.
func openStorage(cfg config.StorageConfig) *badger.DB {
	if cfg.Path == "" && !cfg.InMemory {
		logging.Warn().Msg("no storage configured; signals, notifications, and refresh tokens disabled")
		return nil
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		logging.Error().Err(err).Str("path", cfg.Path).Msg("storage open failed; continuing without persistence")
		return nil
	}
	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("storage opened")
	return db
}
