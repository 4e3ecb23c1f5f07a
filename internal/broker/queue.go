// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
)

// QueuedEvent is one per-connection delivery record. It is created when
// the broadcast service targets a connection that is offline or whose
// event requires acknowledgment, and removed on acknowledgment or TTL
// expiry.
type QueuedEvent struct {
	Event        *events.Event `json:"event"`
	Delivered    bool          `json:"delivered"`
	Acknowledged bool          `json:"acknowledged"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
}

// QueueHealth is an aggregate snapshot of one connection's queue.
type QueueHealth struct {
	Pending       int       `json:"pending"`
	AwaitingAck   int       `json:"awaiting_ack"`
	OldestPending time.Time `json:"oldest_pending"`
}

// OfflineQueueConfig bounds the per-connection queues.
type OfflineQueueConfig struct {
	// Capacity caps each connection's queue.
	Capacity int
}

// DefaultOfflineQueueConfig returns production defaults.
func DefaultOfflineQueueConfig() OfflineQueueConfig {
	return OfflineQueueConfig{Capacity: 1000}
}

// OfflineQueue guarantees that a disconnected recipient does not lose
// acknowledgment-required events. It owns acknowledgment state
// exclusively.
//
// Overflow policy: the oldest non-acknowledgment-required entries are
// dropped first; acknowledgment-required entries go only as a last
// resort, and that loss is logged. TTL expiry discards entries regardless
// of acknowledgment state - that silent loss is expected degraded
// behavior, recovered by a full resync, never a hard failure.
type OfflineQueue struct {
	mu      sync.Mutex
	queues  map[string][]QueuedEvent
	cfg     OfflineQueueConfig
	logSamp *rate.Limiter
}

// NewOfflineQueue creates an empty queue set.
func NewOfflineQueue(cfg OfflineQueueConfig) *OfflineQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultOfflineQueueConfig().Capacity
	}
	return &OfflineQueue{
		queues: make(map[string][]QueuedEvent),
		cfg:    cfg,
		// A drop storm must not become a log storm: sample overflow
		// warnings at one per second with a small burst.
		logSamp: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Enqueue adds the event to the connection's queue, enforcing capacity.
func (q *OfflineQueue) Enqueue(connectionID string, ev *events.Event) {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.sweepLocked(connectionID, now)
	queue = append(queue, QueuedEvent{Event: ev, EnqueuedAt: now})

	for len(queue) > q.cfg.Capacity {
		queue = q.dropOldestLocked(connectionID, queue)
	}

	q.queues[connectionID] = queue
	metrics.QueueDepth.Set(float64(q.totalLocked()))
}

// dropOldestLocked removes the oldest droppable entry: the oldest
// non-ack-required one when any exists, otherwise the oldest entry
// outright (a logged loss).
func (q *OfflineQueue) dropOldestLocked(connectionID string, queue []QueuedEvent) []QueuedEvent {
	for i := range queue {
		if !queue[i].Event.RequiresAck {
			metrics.QueueOverflowDrops.WithLabelValues("false").Inc()
			return append(queue[:i], queue[i+1:]...)
		}
	}

	metrics.QueueOverflowDrops.WithLabelValues("true").Inc()
	if q.logSamp.Allow() {
		logging.Warn().
			Str("connection_id", connectionID).
			Str("event_id", queue[0].Event.ID.String()).
			Str("event_type", string(queue[0].Event.Type)).
			Msg("offline queue overflow dropped acknowledgment-required event")
	}
	return queue[1:]
}

// Drain returns every pending entry for the connection in enqueue order,
// marking them delivered. It does not clear the queue: requiresAck
// entries stay until acknowledged or expired, and the rest are removed
// only once delivery is confirmed via Acknowledge or TTL.
func (q *OfflineQueue) Drain(connectionID string) []QueuedEvent {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.sweepLocked(connectionID, now)
	out := make([]QueuedEvent, len(queue))
	for i := range queue {
		queue[i].Delivered = true
		out[i] = queue[i]
	}
	q.queues[connectionID] = queue
	return out
}

// Acknowledge marks the event acknowledged and removes it from the
// connection's queue. Returns false when the event is not queued (already
// acknowledged, expired, or never enqueued) - callers treat that as
// normal, not as an error.
func (q *OfflineQueue) Acknowledge(connectionID string, eventID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[connectionID]
	for i := range queue {
		if queue[i].Event.ID == eventID {
			q.queues[connectionID] = append(queue[:i], queue[i+1:]...)
			metrics.AcknowledgedEvents.Inc()
			metrics.QueueDepth.Set(float64(q.totalLocked()))
			return true
		}
	}
	return false
}

// HealthSnapshot returns aggregate queue state for one connection.
func (q *OfflineQueue) HealthSnapshot(connectionID string) QueueHealth {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.sweepLocked(connectionID, now)
	q.queues[connectionID] = queue

	var h QueueHealth
	h.Pending = len(queue)
	for i := range queue {
		if queue[i].Event.RequiresAck {
			h.AwaitingAck++
		}
	}
	if len(queue) > 0 {
		h.OldestPending = queue[0].EnqueuedAt
	}
	return h
}

// Sweep removes expired entries from every queue. Called periodically by
// the sweeper service.
func (q *OfflineQueue) Sweep() int {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id := range q.queues {
		before := len(q.queues[id])
		q.queues[id] = q.sweepLocked(id, now)
		removed += before - len(q.queues[id])
		if len(q.queues[id]) == 0 {
			delete(q.queues, id)
		}
	}
	if removed > 0 {
		metrics.EventsDropped.WithLabelValues("queue_ttl").Add(float64(removed))
	}
	metrics.QueueDepth.Set(float64(q.totalLocked()))
	return removed
}

// Depth returns the number of entries queued for a connection.
func (q *OfflineQueue) Depth(connectionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[connectionID])
}

func (q *OfflineQueue) sweepLocked(connectionID string, now time.Time) []QueuedEvent {
	queue := q.queues[connectionID]
	kept := queue[:0]
	for _, entry := range queue {
		if entry.Event.Expired(now) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

func (q *OfflineQueue) totalLocked() int {
	total := 0
	for _, queue := range q.queues {
		total += len(queue)
	}
	return total
}
