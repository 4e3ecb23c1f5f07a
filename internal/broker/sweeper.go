// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"context"
	"time"

	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
)

// DefaultSweepInterval bounds how long an expired event can linger in a
// stream or queue before the background sweep reclaims it.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically evicts expired events from the event store and
// the offline queues. It implements suture.Service and runs under the
// broker layer supervisor.
type Sweeper struct {
	store    *EventStore
	queue    *OfflineQueue
	interval time.Duration
}

// NewSweeper builds a sweeper. A non-positive interval falls back to
// DefaultSweepInterval.
func NewSweeper(store *EventStore, queue *OfflineQueue, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, queue: queue, interval: interval}
}

// Serve runs the sweep loop until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", s.interval).
		Msg("broker sweeper started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("broker sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			swept := s.store.Sweep() + s.queue.Sweep()
			if swept > 0 {
				logging.Debug().
					Int("events", swept).
					Msg("expired events swept")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "broker-sweeper"
}
