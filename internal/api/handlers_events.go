// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/consolidator"
	"github.com/antonio12761/roxy-bar-sub008/internal/events"
)

// PollEvents returns the caller's event stream after the cursor given
// in last_event_id (everything when absent). Reconnecting terminals
// use this to catch up before switching to the websocket feed.
func (rt *Router) PollEvents(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var cursor *uuid.UUID
	if raw := r.URL.Query().Get("last_event_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidParameter, "last_event_id must be a UUID", nil)
			return
		}
		cursor = &parsed
	}

	evs := rt.broadcaster.PendingEvents(id.TenantID, id.ID, cursor)
	if evs == nil {
		evs = []*events.Event{}
	}
	respondJSON(w, http.StatusOK, evs)
}

type ackRequest struct {
	EventIDs []string `json:"event_ids" validate:"required,min=1,dive,uuid"`
}

type ackResponse struct {
	Acked int `json:"acked"`
}

// AckEvents settles delivered events in the caller's offline queue.
func (rt *Router) AckEvents(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req ackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "event_ids must be a non-empty list of UUIDs", nil)
		return
	}

	acked := 0
	for _, raw := range req.EventIDs {
		eventID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if rt.broadcaster.AcknowledgeEvent(id.TenantID, id.ID, eventID) {
			acked++
		}
	}
	respondJSON(w, http.StatusOK, ackResponse{Acked: acked})
}

// Notifications returns the consolidated per-role notification set
// derived from the current order state.
func (rt *Router) Notifications(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	orders := rt.orders.ActiveOrders(id.TenantID)
	// Cold cache on a fresh tenant: fall back to the store once.
	if len(orders) == 0 && rt.orders.LastSync(id.TenantID).IsZero() {
		if _, err := rt.orders.SyncOrders(r.Context(), id.TenantID, false); err == nil {
			orders = rt.orders.ActiveOrders(id.TenantID)
		}
	}

	all := rt.consolidator.Consolidate(orders, time.Now().UTC())
	notifications := consolidator.ForRole(all, id.Role)
	if notifications == nil {
		notifications = []consolidator.Notification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}

type connectionHealthResponse struct {
	Connected bool               `json:"connected"`
	Queue     broker.QueueHealth `json:"queue"`
}

// ConnectionHealth reports whether the caller has a live push session
// and the state of their offline queue. Latency and reconnect counts
// are measured client-side; a terminal combines both views.
func (rt *Router) ConnectionHealth(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	respondJSON(w, http.StatusOK, connectionHealthResponse{
		Connected: rt.broadcaster.Connected(id.TenantID, id.ID),
		Queue:     rt.broadcaster.QueueHealth(id.TenantID, id.ID),
	})
}
