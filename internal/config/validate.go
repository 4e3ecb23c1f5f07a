// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package config

import (
	"errors"
	"fmt"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true,
}

// Validate checks the configuration for values that would make the
// service misbehave at runtime. It returns all problems joined into
// a single error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver))
	}

	if c.Broker.EventTTL <= 0 {
		errs = append(errs, errors.New("broker.event_ttl must be positive"))
	}
	if c.Broker.MaxStreamEvents < 1 {
		errs = append(errs, errors.New("broker.max_stream_events must be at least 1"))
	}
	if c.Broker.QueueCapacity < 1 {
		errs = append(errs, errors.New("broker.queue_capacity must be at least 1"))
	}
	if c.Broker.SweepInterval <= 0 {
		errs = append(errs, errors.New("broker.sweep_interval must be positive"))
	}

	if c.Sync.FullInterval <= 0 {
		errs = append(errs, errors.New("sync.full_interval must be positive"))
	}
	if c.Sync.IncrementalInterval <= 0 {
		errs = append(errs, errors.New("sync.incremental_interval must be positive"))
	}
	if c.Sync.IncrementalInterval >= c.Sync.FullInterval {
		errs = append(errs, errors.New("sync.incremental_interval must be shorter than sync.full_interval"))
	}
	if c.Sync.BatchSize < 1 {
		errs = append(errs, errors.New("sync.batch_size must be at least 1"))
	}
	if c.Sync.BreakerThreshold < 1 {
		errs = append(errs, errors.New("sync.breaker_threshold must be at least 1"))
	}

	if c.Consolidator.PriorityAge <= 0 {
		errs = append(errs, errors.New("consolidator.priority_age must be positive"))
	}
	if c.Consolidator.UrgentAge <= c.Consolidator.PriorityAge {
		errs = append(errs, errors.New("consolidator.urgent_age must be longer than consolidator.priority_age"))
	}

	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret is required (set JWT_SECRET)"))
	} else if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, errors.New("security.jwt_secret must be at least 32 characters"))
	}
	if c.Security.TokenLifetime <= 0 {
		errs = append(errs, errors.New("security.token_lifetime must be positive"))
	}
	if (c.Security.AdminUsername == "") != (c.Security.AdminPassword == "") {
		errs = append(errs, errors.New("security.admin_username and security.admin_password must be set together"))
	}
	if c.Security.AdminUsername != "" && c.Security.AdminTenant == "" {
		errs = append(errs, errors.New("security.admin_tenant is required when bootstrapping an admin account"))
	}
	if c.Security.RateLimitReqs < 1 {
		errs = append(errs, errors.New("security.rate_limit_reqs must be at least 1"))
	}
	if c.Security.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("security.rate_limit_window must be positive"))
	}

	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		errs = append(errs, errors.New("metrics.path is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
