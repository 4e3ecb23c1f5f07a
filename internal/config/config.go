// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package config loads and validates the service configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest precedence).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Broker       BrokerConfig       `koanf:"broker"`
	Sync         SyncConfig         `koanf:"sync"`
	Consolidator ConsolidatorConfig `koanf:"consolidator"`
	Security     SecurityConfig     `koanf:"security"`
	Logging      LoggingConfig      `koanf:"logging"`
	Metrics      MetricsConfig      `koanf:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects and tunes the order/user store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// BrokerConfig tunes the event store and offline queues.
type BrokerConfig struct {
	EventTTL        time.Duration `koanf:"event_ttl"`
	MaxStreamEvents int           `koanf:"max_stream_events"`
	QueueCapacity   int           `koanf:"queue_capacity"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
}

// SyncConfig tunes the order synchronization loops.
type SyncConfig struct {
	FullInterval        time.Duration `koanf:"full_interval"`
	IncrementalInterval time.Duration `koanf:"incremental_interval"`
	BatchSize           int           `koanf:"batch_size"`
	BreakerThreshold    int           `koanf:"breaker_threshold"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
}

// ConsolidatorConfig tunes notification priority escalation.
type ConsolidatorConfig struct {
	PriorityAge time.Duration `koanf:"priority_age"`
	UrgentAge   time.Duration `koanf:"urgent_age"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenLifetime   time.Duration `koanf:"token_lifetime"`
	AdminTenant     string        `koanf:"admin_tenant"`
	AdminUsername   string        `koanf:"admin_username"`
	AdminPassword   string        `koanf:"admin_password"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// defaultConfig returns the built-in defaults. Every field that Load
// can override must have a sensible value here.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "/data/roxy-bar.db",
		},
		Broker: BrokerConfig{
			EventTTL:        5 * time.Minute,
			MaxStreamEvents: 1000,
			QueueCapacity:   500,
			SweepInterval:   30 * time.Second,
		},
		Sync: SyncConfig{
			FullInterval:        5 * time.Minute,
			IncrementalInterval: 2 * time.Second,
			BatchSize:           50,
			BreakerThreshold:    5,
			BreakerTimeout:      30 * time.Second,
		},
		Consolidator: ConsolidatorConfig{
			PriorityAge: 10 * time.Minute,
			UrgentAge:   20 * time.Minute,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			TokenLifetime:   12 * time.Hour,
			AdminTenant:     "roxy-bar",
			AdminUsername:   "",
			AdminPassword:   "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
