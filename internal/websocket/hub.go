// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package websocket carries the live event feed to connected POS
// terminals. Each socket is one staff session; the hub subscribes to
// the per-tenant event topic, fans events out to the sessions the
// event targets, and replays the offline backlog when a terminal
// reconnects.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
)

// Frame types exchanged over the socket.
const (
	FrameTypeEvent   = "event"
	FrameTypeBacklog = "backlog"
	FrameTypeAck     = "ack"
	FrameTypeAckOK   = "ack_ok"
	FrameTypePing    = "ping"
	FrameTypePong    = "pong"
)

// Frame is the envelope for every websocket message in both
// directions.
type Frame struct {
	Type     string        `json:"type"`
	Event    *events.Event `json:"event,omitempty"`
	EventIDs []string      `json:"event_ids,omitempty"`
	Acked    int           `json:"acked,omitempty"`
}

// Hub maintains the set of active clients and routes tenant events to
// the sessions they target.
type Hub struct {
	presence    *broker.Presence
	broadcaster *broker.Broadcaster
	subscriber  message.Subscriber

	Register   chan *Client
	Unregister chan *Client

	events chan *events.Event

	mu      sync.RWMutex
	clients map[*Client]bool
	tenants map[string]bool
	done    chan struct{}
}

// NewHub creates a hub wired to the presence registry, the broadcast
// service and the live event bus.
func NewHub(presence *broker.Presence, broadcaster *broker.Broadcaster, subscriber message.Subscriber) *Hub {
	return &Hub{
		presence:    presence,
		broadcaster: broadcaster,
		subscriber:  subscriber,
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		events:      make(chan *events.Event, 256),
		clients:     make(map[*Client]bool),
		tenants:     make(map[string]bool),
	}
}

// Serve runs the hub until the context is canceled. Lifecycle events
// are drained before broadcast traffic so client state is consistent
// when an event fans out.
func (h *Hub) Serve(ctx context.Context) error {
	// Fresh run state: a restarted hub resubscribes its tenants and the
	// previous run's pumps stay released.
	h.mu.Lock()
	h.tenants = make(map[string]bool)
	h.done = make(chan struct{})
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(ctx, client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(ctx, client)
		case client := <-h.Unregister:
			h.unregister(client)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

// register admits a client, records its presence, replays the offline
// backlog and makes sure its tenant topic is subscribed.
func (h *Hub) register(ctx context.Context, client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.presence.Register(client.session)
	metrics.WebSocketClients.Inc()

	if err := h.ensureTenant(ctx, client.session.TenantID); err != nil {
		logging.Error().Err(err).
			Str("tenant_id", client.session.TenantID).
			Msg("tenant event subscription failed")
	}

	queued := h.broadcaster.DrainQueued(client.session.TenantID, client.session.UserID)
	for _, qe := range queued {
		client.trySend(Frame{Type: FrameTypeBacklog, Event: qe.Event})
	}

	logging.Info().
		Str("tenant_id", client.session.TenantID).
		Str("user_id", client.session.UserID).
		Str("role", string(client.session.Role)).
		Int("backlog", len(queued)).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.presence.Unregister(client.session.ConnectionID)
	metrics.WebSocketClients.Dec()

	logging.Info().
		Str("tenant_id", client.session.TenantID).
		Str("user_id", client.session.UserID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// ensureTenant subscribes to the tenant's event topic once and pumps
// its messages into the hub loop.
func (h *Hub) ensureTenant(ctx context.Context, tenantID string) error {
	h.mu.Lock()
	if h.tenants[tenantID] {
		h.mu.Unlock()
		return nil
	}
	h.tenants[tenantID] = true
	h.mu.Unlock()

	msgs, err := h.subscriber.Subscribe(ctx, broker.EventTopic(tenantID))
	if err != nil {
		h.mu.Lock()
		delete(h.tenants, tenantID)
		h.mu.Unlock()
		return err
	}

	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()

	go h.pump(msgs, done)
	return nil
}

// pump decodes bus messages into events. Messages are acked
// unconditionally: the event store already holds every event, so a
// decode failure is logged and skipped rather than redelivered. The
// done channel releases a pump blocked on a full event buffer once the
// hub stops draining it.
func (h *Hub) pump(msgs <-chan *message.Message, done <-chan struct{}) {
	for msg := range msgs {
		ev, err := events.Unmarshal(msg.Payload)
		msg.Ack()
		if err != nil {
			logging.Error().Err(err).
				Str("message_id", msg.UUID).
				Msg("undecodable event on bus")
			continue
		}
		select {
		case h.events <- ev:
		case <-done:
			return
		}
	}
}

// deliver fans an event out to every connected session it targets,
// in stable client order.
func (h *Hub) deliver(ev *events.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.session.TenantID != ev.TenantID {
			continue
		}
		if !ev.TargetsRole(client.session.Role) {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	frame := Frame{Type: FrameTypeEvent, Event: ev}
	for _, client := range targets {
		if !client.trySend(frame) {
			logging.Warn().
				Str("user_id", client.session.UserID).
				Str("event_id", ev.ID.String()).
				Msg("client send buffer full, event dropped from socket")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes every client connection and releases the tenant
// pumps.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	close(h.done)
	h.mu.Unlock()

	for _, client := range clients {
		h.presence.Unregister(client.session.ConnectionID)
		metrics.WebSocketClients.Dec()
		close(client.send)
	}

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}
