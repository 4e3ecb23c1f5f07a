// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package client implements the reconciliation loop a consuming client
// runs against the event API: poll unread events, apply entity changes
// in order, detect version gaps and resync instead of applying stale
// state, and track connection quality from observed round trips. The
// server ships it for its own dashboards and for end-to-end tests; its
// contract is what constrains the server's delivery semantics.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
)

// Quality classifies the connection from round-trip latency.
type Quality string

const (
	QualityExcellent    Quality = "excellent" // < 100ms
	QualityGood         Quality = "good"      // < 300ms
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// qualityFor maps a round trip to a quality band.
func qualityFor(rtt time.Duration) Quality {
	switch {
	case rtt < 100*time.Millisecond:
		return QualityExcellent
	case rtt < 300*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}

// Health is the connection state surfaced to status indicators.
type Health struct {
	Connected         bool    `json:"connected"`
	Quality           Quality `json:"quality"`
	LatencyMs         int64   `json:"latency_ms"`
	ReconnectAttempts int     `json:"reconnect_attempts"`
}

// EventSource is the server surface the reconciler consumes.
type EventSource interface {
	// PollEvents returns unread events after the cursor.
	PollEvents(ctx context.Context, lastEventID *uuid.UUID) ([]*events.Event, error)

	// AcknowledgeEvents echoes back delivered acknowledgment-required IDs.
	AcknowledgeEvents(ctx context.Context, eventIDs []uuid.UUID) error

	// ResyncEntity reloads one entity's authoritative state and returns
	// its current version.
	ResyncEntity(ctx context.Context, entityType, entityID string) (int64, error)
}

// ApplyFunc receives each entity change the reconciler accepts, in
// delivery order.
type ApplyFunc func(ev *events.Event, change events.EntityChange)

// Config tunes the loop.
type Config struct {
	// PollInterval is the steady-state poll period.
	PollInterval time.Duration
	// DegradedInterval is the faster period used while disconnected, so
	// recovery is noticed quickly.
	DegradedInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:     3 * time.Second,
		DegradedInterval: time.Second,
	}
}

// Reconciler tracks per-entity versions and connection health for one
// consuming client.
type Reconciler struct {
	source EventSource
	apply  ApplyFunc
	cfg    Config

	mu          sync.Mutex
	versions    map[string]int64
	lastEventID *uuid.UUID
	health      Health
}

// New creates a reconciler. apply may be nil when the caller only wants
// version bookkeeping.
func New(source EventSource, apply ApplyFunc, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DegradedInterval <= 0 {
		cfg.DegradedInterval = def.DegradedInterval
	}
	return &Reconciler{
		source:   source,
		apply:    apply,
		cfg:      cfg,
		versions: make(map[string]int64),
		health:   Health{Quality: QualityDisconnected},
	}
}

// Health returns the current connection snapshot.
func (r *Reconciler) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.health
}

// EntityVersion returns the locally held version for an entity key,
// 0 when unseen.
func (r *Reconciler) EntityVersion(entityType, entityID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[entityType+":"+entityID]
}

// Poll performs one poll-apply-acknowledge cycle and returns the number
// of events processed.
func (r *Reconciler) Poll(ctx context.Context) (int, error) {
	r.mu.Lock()
	cursor := r.lastEventID
	r.mu.Unlock()

	start := time.Now()
	evs, err := r.source.PollEvents(ctx, cursor)
	rtt := time.Since(start)
	if err != nil {
		r.mu.Lock()
		r.health.Connected = false
		r.health.Quality = QualityDisconnected
		r.health.ReconnectAttempts++
		r.mu.Unlock()
		return 0, fmt.Errorf("poll events: %w", err)
	}

	r.mu.Lock()
	r.health.Connected = true
	r.health.Quality = qualityFor(rtt)
	r.health.LatencyMs = rtt.Milliseconds()
	r.mu.Unlock()

	var ackIDs []uuid.UUID
	for _, ev := range evs {
		r.applyEvent(ctx, ev)
		if ev.RequiresAck {
			ackIDs = append(ackIDs, ev.ID)
		}
		id := ev.ID
		r.mu.Lock()
		r.lastEventID = &id
		r.mu.Unlock()
	}

	if len(ackIDs) > 0 {
		if err := r.source.AcknowledgeEvents(ctx, ackIDs); err != nil {
			logging.Warn().Err(err).Int("events", len(ackIDs)).Msg("acknowledgment failed, will redeliver")
		}
	}
	return len(evs), nil
}

// applyEvent walks the event's entity changes in order. A change whose
// PreviousVersion disagrees with the locally held version is a gap: it is
// never applied; the entity is resynced to its authoritative state
// instead.
func (r *Reconciler) applyEvent(ctx context.Context, ev *events.Event) {
	for _, change := range ev.EntityChanges {
		key := change.EntityType + ":" + change.EntityID

		r.mu.Lock()
		local := r.versions[key]
		r.mu.Unlock()

		if change.PreviousVersion != local {
			metrics.VersionConflicts.Inc()
			logging.Warn().
				Str("entity", key).
				Int64("local_version", local).
				Int64("previous_version", change.PreviousVersion).
				Msg("version gap detected, resyncing entity")

			version, err := r.source.ResyncEntity(ctx, change.EntityType, change.EntityID)
			if err != nil {
				logging.Error().Err(err).Str("entity", key).Msg("entity resync failed")
				continue
			}
			r.mu.Lock()
			r.versions[key] = version
			r.mu.Unlock()
			continue
		}

		if r.apply != nil {
			r.apply(ev, change)
		}
		r.mu.Lock()
		r.versions[key] = change.Version
		r.mu.Unlock()
	}
}

// Run polls until the context is canceled, escalating the poll rate
// while the connection is degraded. Every wait is cancellable; the loop
// never blocks past its context.
func (r *Reconciler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		_, err := r.Poll(ctx)

		interval := r.cfg.PollInterval
		if err != nil {
			interval = r.cfg.DegradedInterval
		}
		timer.Reset(interval)
	}
}
