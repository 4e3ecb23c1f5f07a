// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package broker implements the single-process in-memory event
// distribution core: per-recipient event streams, the offline delivery
// queue, entity version tracking, session presence and the broadcast
// service that fans a domain event out to every targeted recipient.
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
)

// EventStoreConfig bounds the per-recipient streams.
type EventStoreConfig struct {
	// MaxEventsPerRecipient caps each recipient stream; the oldest entry
	// is dropped when the cap is exceeded.
	MaxEventsPerRecipient int

	// DefaultTTL applies to events that carry no TTL of their own.
	DefaultTTL time.Duration
}

// DefaultEventStoreConfig returns production defaults.
func DefaultEventStoreConfig() EventStoreConfig {
	return EventStoreConfig{
		MaxEventsPerRecipient: 200,
		DefaultTTL:            events.DefaultTTL,
	}
}

// storedEvent is one recipient's copy of an event. The event pointer is
// shared across streams and immutable by contract; seq and read belong to
// this recipient alone.
type storedEvent struct {
	event *events.Event
	seq   uint64
	read  bool
}

type recipientStream struct {
	entries []storedEvent
	nextSeq uint64
}

// EventStore holds, per (tenant, recipient), a bounded time-limited
// ordered stream of events with read/unread tracking. Append order equals
// delivery order within one stream; there is no cross-recipient ordering
// guarantee.
//
// The store owns event lifecycle (append, TTL sweep) exclusively.
// Acknowledgment state lives in the OfflineQueue, never here.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string]*recipientStream
	cfg     EventStoreConfig
}

// NewEventStore creates an empty store.
func NewEventStore(cfg EventStoreConfig) *EventStore {
	if cfg.MaxEventsPerRecipient <= 0 {
		cfg.MaxEventsPerRecipient = DefaultEventStoreConfig().MaxEventsPerRecipient
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultEventStoreConfig().DefaultTTL
	}
	return &EventStore{
		streams: make(map[string]*recipientStream),
		cfg:     cfg,
	}
}

func streamKey(tenantID, recipientID string) string {
	return tenantID + "/" + recipientID
}

// Append adds the event to the recipient's stream, sweeping expired
// entries and enforcing the stream bound. Events never cross tenants; the
// tenant comes from the event itself.
func (s *EventStore) Append(recipientID string, ev *events.Event) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(ev.TenantID, recipientID)
	stream, ok := s.streams[key]
	if !ok {
		stream = &recipientStream{}
		s.streams[key] = stream
	}

	stream.entries = sweepExpired(stream.entries, now, s.cfg.DefaultTTL)

	stream.nextSeq++
	stream.entries = append(stream.entries, storedEvent{event: ev, seq: stream.nextSeq})

	if overflow := len(stream.entries) - s.cfg.MaxEventsPerRecipient; overflow > 0 {
		stream.entries = stream.entries[overflow:]
		metrics.EventsDropped.WithLabelValues("stream_bound").Add(float64(overflow))
	}

	metrics.StreamDepth.Set(float64(s.totalLocked()))
}

// GetUnread returns the recipient's pending events in stream order.
//
// With a cursor: every event strictly after lastEventID, regardless of
// read state. If the cursor is no longer in the stream (expired or
// dropped), the whole stream is returned and the client dedupes; losing
// events to an aged-out cursor would be worse than redelivery.
//
// Without a cursor: every unread event, marked read as a side effect of
// the call. Read state is independent of acknowledgment.
//
// An unknown recipient yields an empty result, not an error; new clients
// are normal.
func (s *EventStore) GetUnread(tenantID, recipientID string, lastEventID *uuid.UUID) []*events.Event {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamKey(tenantID, recipientID)]
	if !ok {
		return nil
	}

	stream.entries = sweepExpired(stream.entries, now, s.cfg.DefaultTTL)

	var out []*events.Event
	if lastEventID != nil {
		afterSeq := uint64(0)
		for i := range stream.entries {
			if stream.entries[i].event.ID == *lastEventID {
				afterSeq = stream.entries[i].seq
				break
			}
		}
		for i := range stream.entries {
			if stream.entries[i].seq > afterSeq {
				out = append(out, stream.entries[i].event)
			}
		}
		return out
	}

	for i := range stream.entries {
		if !stream.entries[i].read {
			stream.entries[i].read = true
			out = append(out, stream.entries[i].event)
		}
	}
	return out
}

// MarkRead flags the given events read for the recipient. Unknown IDs are
// ignored.
func (s *EventStore) MarkRead(tenantID, recipientID string, eventIDs []uuid.UUID) {
	if len(eventIDs) == 0 {
		return
	}
	ids := make(map[uuid.UUID]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamKey(tenantID, recipientID)]
	if !ok {
		return
	}
	for i := range stream.entries {
		if _, hit := ids[stream.entries[i].event.ID]; hit {
			stream.entries[i].read = true
		}
	}
}

// Sweep removes expired events from every stream. Called periodically by
// the sweeper service in addition to the lazy per-access sweeps.
func (s *EventStore) Sweep() int {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, stream := range s.streams {
		before := len(stream.entries)
		stream.entries = sweepExpired(stream.entries, now, s.cfg.DefaultTTL)
		removed += before - len(stream.entries)
		if len(stream.entries) == 0 {
			delete(s.streams, key)
		}
	}
	if removed > 0 {
		metrics.EventsDropped.WithLabelValues("ttl").Add(float64(removed))
	}
	metrics.StreamDepth.Set(float64(s.totalLocked()))
	return removed
}

// StreamDepth returns the number of events currently held for a recipient.
func (s *EventStore) StreamDepth(tenantID, recipientID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.streams[streamKey(tenantID, recipientID)]
	if !ok {
		return 0
	}
	return len(stream.entries)
}

func (s *EventStore) totalLocked() int {
	total := 0
	for _, stream := range s.streams {
		total += len(stream.entries)
	}
	return total
}

// sweepExpired drops entries whose event TTL has elapsed. Events without
// their own TTL fall back to the store default.
func sweepExpired(entries []storedEvent, now time.Time, defaultTTL time.Duration) []storedEvent {
	kept := entries[:0]
	for _, e := range entries {
		ttl := time.Duration(e.event.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = defaultTTL
		}
		if now.Sub(e.event.Timestamp) <= ttl {
			kept = append(kept, e)
		}
	}
	return kept
}
