// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/harmonia/config.yaml",
	"/etc/harmonia/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are the
// lowest-precedence layer; config file and environment override them.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8465,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 30 * 24 * time.Hour,
		},
		Broker: BrokerConfig{
			URL:             "",
			Embedded:        false,
			StoreDir:        "/data/harmonia/jetstream",
			ConnectAttempts: 5,
			ConnectDelay:    5 * time.Second,
			StreamName:      "HARMONIA_EVENTS",
			QueueGroup:      "signal-processors",
		},
		Storage: StorageConfig{
			Path:     "",
			InMemory: false,
		},
		Realtime: RealtimeConfig{
			SendBuffer: 256,
		},
		Signals: SignalsConfig{
			SubjectPrefix:    "events.interaction",
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with layered precedence: defaults, then an
// optional YAML file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps recognized environment variables to koanf paths.
// Unknown variables are ignored so ambient process environment (PATH, HOME)
// never leaks into configuration.
var envMappings = map[string]string{
	"host":              "server.host",
	"port":              "server.port",
	"server_timeout":    "server.timeout",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	"jwt_secret":        "security.jwt_secret",
	"access_token_ttl":  "security.access_token_ttl",
	"refresh_token_ttl": "security.refresh_token_ttl",

	"nats_url":                "broker.url",
	"nats_embedded":           "broker.embedded",
	"nats_store_dir":          "broker.store_dir",
	"broker_connect_attempts": "broker.connect_attempts",
	"broker_connect_delay":    "broker.connect_delay",
	"broker_stream_name":      "broker.stream_name",
	"broker_queue_group":      "broker.queue_group",

	"storage_path":      "storage.path",
	"storage_in_memory": "storage.in_memory",

	"realtime_send_buffer": "realtime.send_buffer",

	"signals_subject_prefix":    "signals.subject_prefix",
	"signals_breaker_threshold": "signals.breaker_threshold",
	"signals_breaker_timeout":   "signals.breaker_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
