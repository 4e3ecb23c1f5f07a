// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package authz enforces role-based access control over the POS API
// using Casbin. Policies map staff roles to API resources and
// actions; the model and default policy ship embedded in the binary
// and can be overridden from disk.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions recognized by the policy.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionAck    = "ack"
)

// Resources recognized by the policy.
const (
	ResourceEvents         = "/events"
	ResourceNotifications  = "/notifications"
	ResourceOrders         = "/orders"
	ResourceConnection     = "/connection"
	ResourcePaymentRequest = "/payments/request"
	ResourcePaymentAck     = "/payments/ack"
	ResourceSyncForce      = "/sync/force"
	ResourceAdminUsers     = "/admin/users"
)

// OrderItemResource returns the policy object for a single order line.
func OrderItemResource(orderID, itemID string) string {
	return "/orders/" + orderID + "/items/" + itemID
}

// Config holds enforcer settings.
type Config struct {
	// ModelPath overrides the embedded model when it points at an
	// existing file.
	ModelPath string

	// PolicyPath overrides the embedded policy when it points at an
	// existing file.
	PolicyPath string

	// AutoReload re-reads a file-backed policy periodically.
	AutoReload     bool
	ReloadInterval time.Duration

	// CacheEnabled caches enforcement decisions.
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoReload:     false,
		ReloadInterval: 30 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       5 * time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with decision caching.
type Enforcer struct {
	config   *Config
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer builds an enforcer from the embedded model and policy,
// or from the files named in config when they exist.
func NewEnforcer(config *Config) (*Enforcer, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		adapter := fileadapter.NewAdapter(config.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if config.AutoReload && config.PolicyPath != "" {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
	}
	if config.CacheEnabled {
		e.cache = newDecisionCache(config.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Enforce reports whether the subject may perform the action on the
// object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", subject, object, action, err)
	}

	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}
	return allowed, nil
}

// Allowed reports whether the role may perform the action on the
// object.
func (e *Enforcer) Allowed(role models.Role, object, action string) (bool, error) {
	return e.Enforce(string(role), object, action)
}

// Close stops background cache maintenance.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
