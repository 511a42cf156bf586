// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package config loads Harmonia configuration with layered precedence:
// built-in defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/harmonia-fm/harmonia/internal/logging"
)

// Config is the root configuration for the Harmonia server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Broker   BrokerConfig   `koanf:"broker"`
	Storage  StorageConfig  `koanf:"storage"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Signals  SignalsConfig  `koanf:"signals"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SecurityConfig holds credential verification settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies access tokens. When empty a warning is
	// logged and every verification fails; the server still starts so that
	// health endpoints remain reachable.
	JWTSecret string `koanf:"jwt_secret"`

	// AccessTokenTTL bounds access token lifetime.
	AccessTokenTTL time.Duration `koanf:"access_token_ttl"`

	// RefreshTokenTTL bounds refresh token lifetime.
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
}

// BrokerConfig holds event broker (NATS) settings. The broker doubles as the
// platform's durable event store via JetStream.
type BrokerConfig struct {
	// URL of the NATS server. When empty a warning is logged and
	// persistence-dependent operations are disabled.
	URL string `koanf:"url"`

	// Embedded runs an in-process NATS server instead of dialing URL.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`

	// ConnectAttempts and ConnectDelay bound startup connection retries.
	// Exhaustion is non-fatal; the server continues degraded.
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	ConnectDelay    time.Duration `koanf:"connect_delay"`

	// StreamName is the JetStream stream holding interaction events.
	StreamName string `koanf:"stream_name"`
	QueueGroup string `koanf:"queue_group"`
}

// StorageConfig holds the local signal/notification store settings.
type StorageConfig struct {
	// Path of the badger database directory. Empty disables persistence.
	Path string `koanf:"path"`

	// InMemory runs badger without disk persistence (tests, ephemeral dev).
	InMemory bool `koanf:"in_memory"`
}

// RealtimeConfig holds websocket hub settings.
type RealtimeConfig struct {
	// SendBuffer is the per-client outbound queue length. A client whose
	// queue is full is disconnected rather than allowed to stall the hub.
	SendBuffer int `koanf:"send_buffer" validate:"gte=1"`
}

// SignalsConfig holds interaction signal pipeline settings.
type SignalsConfig struct {
	// Subject prefix for published interaction events.
	SubjectPrefix string `koanf:"subject_prefix"`

	// BreakerThreshold consecutive publish failures open the circuit.
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig mirrors logging.Config for the config file.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration and logs warnings for degraded-mode
// settings (missing secret, missing broker URL). Hard failures are returned
// as errors; degraded settings only warn.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Security.JWTSecret == "" {
		logging.Warn().Msg("security.jwt_secret is not set; credential verification will always fail")
	} else if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}

	if c.Broker.URL == "" && !c.Broker.Embedded {
		logging.Warn().Msg("broker.url is not set; persistence-dependent operations are disabled")
	}

	return nil
}

// BrokerEnabled reports whether an event broker is configured at all.
func (c *Config) BrokerEnabled() bool {
	return c.Broker.URL != "" || c.Broker.Embedded
}
