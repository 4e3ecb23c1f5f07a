// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that overrides the
// config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order for a config file.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/roxy-bar/config.yaml",
	"/etc/roxy-bar/config.yml",
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest precedence)
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

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := expandSliceFields(k); err != nil {
		return nil, fmt.Errorf("expand slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, honoring
// CONFIG_PATH before the default search paths.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps flat environment variable names (lowercased) to
// nested config paths.
var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"shutdown_timeout":    "server.shutdown_timeout",
	"database_driver":     "database.driver",
	"database_path":       "database.path",
	"event_ttl":           "broker.event_ttl",
	"max_stream_events":   "broker.max_stream_events",
	"queue_capacity":      "broker.queue_capacity",
	"sweep_interval":      "broker.sweep_interval",
	"sync_full_interval":  "sync.full_interval",
	"sync_incr_interval":  "sync.incremental_interval",
	"sync_batch_size":     "sync.batch_size",
	"breaker_threshold":   "sync.breaker_threshold",
	"breaker_timeout":     "sync.breaker_timeout",
	"notify_priority_age": "consolidator.priority_age",
	"notify_urgent_age":   "consolidator.urgent_age",
	"jwt_secret":          "security.jwt_secret",
	"token_lifetime":      "security.token_lifetime",
	"admin_tenant":        "security.admin_tenant",
	"admin_username":      "security.admin_username",
	"admin_password":      "security.admin_password",
	"rate_limit_reqs":     "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"cors_origins":        "security.cors_origins",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
	"metrics_enabled":     "metrics.enabled",
	"metrics_path":        "metrics.path",
}

// envTransform maps environment variable names to koanf config paths.
// Unmapped ROXY_-prefixed variables fall back to underscore-to-dot
// expansion of the first segment: ROXY_SERVER_PORT -> server.port.
func envTransform(key string) string {
	key = strings.ToLower(key)

	if path, ok := envMappings[key]; ok {
		return path
	}

	if rest, ok := strings.CutPrefix(key, "roxy_"); ok {
		if path, ok := envMappings[rest]; ok {
			return path
		}
		if section, field, ok := strings.Cut(rest, "_"); ok {
			return section + "." + field
		}
	}

	// Ignore unrelated environment variables.
	return ""
}

// sliceConfigPaths lists paths parsed as comma-separated lists when
// set from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// expandSliceFields splits comma-separated string values into slices
// for the paths that expect them.
func expandSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
