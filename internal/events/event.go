// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package events defines the canonical event envelope propagated from the
// point of mutation to every connected role-specific client, together with
// the closed event-type enum and the publication policy table.
//
// An Event is authored once by the broadcast service and then appended to
// one stream per recipient; consumers may mark their copy read or
// acknowledged but never mutate the payload.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// Type is the closed tag identifying what happened. Adding a value here
// requires a matching entry in the policy table.
type Type string

const (
	TypeOrderNew           Type = "order-new"
	TypeOrderUpdate        Type = "order-update"
	TypeOrderReady         Type = "order-ready"
	TypeOrderDelivered     Type = "order-delivered"
	TypePaymentRequested   Type = "payment-requested"
	TypeInventoryExhausted Type = "inventory-exhausted"
	TypeEntityCreated      Type = "entity-created"
	TypeEntityUpdated      Type = "entity-updated"
	TypeEntityDeleted      Type = "entity-deleted"
	TypeBulkUpdate         Type = "bulk-update"
	TypeSyncCompleted      Type = "sync-completed"
)

// Priority orders events for client-side filtering. URGENT and HIGH events
// bypass any client-side priority filter.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank returns the numeric ordering of a priority, higher is more urgent.
// Unknown values rank as NORMAL.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Max returns the higher of two priorities.
func (p Priority) Max(other Priority) Priority {
	if other.Rank() > p.Rank() {
		return other
	}
	return p
}

// Operation describes the kind of state transition an EntityChange carries.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// FieldChange is a single field-level delta inside an EntityChange.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

// EntityChange describes one entity's state transition for conflict and
// version-gap detection. Version is the value assigned by the version
// tracker after incrementing; PreviousVersion is Version-1 and lets a
// consumer detect a missed update for that entity.
type EntityChange struct {
	EntityType      string        `json:"entity_type"`
	EntityID        string        `json:"entity_id"`
	Operation       Operation     `json:"operation"`
	Version         int64         `json:"version"`
	PreviousVersion int64         `json:"previous_version"`
	Changes         []FieldChange `json:"changes,omitempty"`
}

// Event is the atomic unit of propagation. TenantID is the isolation
// boundary; events never cross tenants. TargetRoles empty means broadcast
// to every role in the tenant.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Type          Type            `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	TenantID      string          `json:"tenant_id"`
	TargetRoles   []models.Role   `json:"target_roles,omitempty"`
	Priority      Priority        `json:"priority"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	EntityChanges []EntityChange  `json:"entity_changes,omitempty"`
	RequiresAck   bool            `json:"requires_acknowledgment"`
	TTLSeconds    int             `json:"ttl_seconds,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// New creates an event with a fresh ID and UTC timestamp. Priority,
// acknowledgment requirement and TTL come from the policy table and can be
// overridden by the caller before publication.
func New(tenantID string, typ Type) *Event {
	pol := PolicyFor(typ)
	return &Event{
		ID:          uuid.New(),
		Type:        typ,
		Timestamp:   time.Now().UTC(),
		TenantID:    tenantID,
		TargetRoles: pol.DefaultTargetRoles,
		Priority:    pol.Priority,
		RequiresAck: pol.RequiresAck,
		TTLSeconds:  int(pol.TTL / time.Second),
	}
}

// Expired reports whether the event's TTL has elapsed relative to now.
// Events without a TTL never expire.
func (e *Event) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > time.Duration(e.TTLSeconds)*time.Second
}

// TargetsRole reports whether the event should be delivered to the given
// role. An empty TargetRoles set targets every role in the tenant.
func (e *Event) TargetsRole(role models.Role) bool {
	if len(e.TargetRoles) == 0 {
		return true
	}
	for _, r := range e.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

// SetPayload marshals v into the opaque payload.
func (e *Event) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Payload = data
	return nil
}

// Marshal serializes the event for the wire.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from the wire.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
