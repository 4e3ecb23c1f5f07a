// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// ErrNilDependency is returned when a broadcaster is constructed without
// one of its required collaborators.
var ErrNilDependency = errors.New("broadcaster dependency cannot be nil")

// UserDirectory resolves the users of a tenant by role. It is consumed
// from the persistence layer; the broadcaster treats it as a black box.
type UserDirectory interface {
	FindUsersByTenantAndRoles(ctx context.Context, tenantID string, roles []models.Role) ([]models.UserRef, error)
}

// EventTopic is the in-process pub/sub topic carrying a tenant's live
// events. The websocket hub subscribes per tenant.
func EventTopic(tenantID string) string {
	return "pos.events." + tenantID
}

// Broadcaster is the single entry point mutating code calls to publish a
// domain event. It resolves fan-out targets by tenant and role, assigns
// entity versions, appends to each recipient's stream, queues for
// disconnected or acknowledgment-gated recipients and pushes onto the
// live bus for connected ones.
type Broadcaster struct {
	store     *EventStore
	queue     *OfflineQueue
	versions  *VersionTracker
	presence  *Presence
	directory UserDirectory
	pub       message.Publisher
}

// NewBroadcaster wires the broadcast service.
func NewBroadcaster(store *EventStore, queue *OfflineQueue, versions *VersionTracker, presence *Presence, directory UserDirectory, pub message.Publisher) (*Broadcaster, error) {
	if store == nil || queue == nil || versions == nil || presence == nil || directory == nil || pub == nil {
		return nil, ErrNilDependency
	}
	return &Broadcaster{
		store:     store,
		queue:     queue,
		versions:  versions,
		presence:  presence,
		directory: directory,
		pub:       pub,
	}, nil
}

// Versions exposes the tracker for read-only version queries.
func (b *Broadcaster) Versions() *VersionTracker {
	return b.versions
}

// PendingEvents returns the recipient's unread or post-cursor events.
func (b *Broadcaster) PendingEvents(tenantID, recipientID string, lastEventID *uuid.UUID) []*events.Event {
	return b.store.GetUnread(tenantID, recipientID, lastEventID)
}

// DrainQueued returns the recipient's queued deliveries, marking them
// delivered. Acknowledgment-required entries stay queued until
// AcknowledgeEvent removes them.
func (b *Broadcaster) DrainQueued(tenantID, recipientID string) []QueuedEvent {
	return b.queue.Drain(streamKey(tenantID, recipientID))
}

// AcknowledgeEvent records a client acknowledgment. It reports whether
// the event was still queued.
func (b *Broadcaster) AcknowledgeEvent(tenantID, recipientID string, eventID uuid.UUID) bool {
	return b.queue.Acknowledge(streamKey(tenantID, recipientID), eventID)
}

// QueueHealth reports the recipient's offline queue state.
func (b *Broadcaster) QueueHealth(tenantID, recipientID string) QueueHealth {
	return b.queue.HealthSnapshot(streamKey(tenantID, recipientID))
}

// Connected reports whether the recipient holds a live session.
func (b *Broadcaster) Connected(tenantID, recipientID string) bool {
	return b.presence.Connected(tenantID, recipientID)
}

// Broadcast fans the event out to every active recipient of the tenant
// whose role matches the event's target set (every role when the set is
// empty). A tenant with zero matching recipients is a no-op, not an
// error. The event must already carry its metadata; use the Publish*
// wrappers for policy-driven construction.
func (b *Broadcaster) Broadcast(ctx context.Context, ev *events.Event) (int, error) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	roles := ev.TargetRoles
	if len(roles) == 0 {
		roles = models.AllRoles()
	}
	recipients, err := b.directory.FindUsersByTenantAndRoles(ctx, ev.TenantID, roles)
	if err != nil {
		return 0, fmt.Errorf("resolve recipients for tenant %s: %w", ev.TenantID, err)
	}

	for _, r := range recipients {
		b.store.Append(r.ID, ev)
		if ev.RequiresAck || !b.presence.Connected(ev.TenantID, r.ID) {
			b.queue.Enqueue(streamKey(ev.TenantID, r.ID), ev)
		}
	}

	metrics.EventsPublished.WithLabelValues(string(ev.Type), string(ev.Priority)).Inc()
	metrics.EventFanout.Observe(float64(len(recipients)))

	if len(recipients) == 0 {
		logging.Debug().
			Str("tenant", ev.TenantID).
			Str("event_type", string(ev.Type)).
			Msg("broadcast with no matching recipients")
		return 0, nil
	}

	if err := b.publishLive(ev); err != nil {
		// Streams and queues already hold the event; a live-push failure
		// only delays delivery until the next poll.
		logging.Warn().Err(err).
			Str("event_id", ev.ID.String()).
			Msg("live push failed, recipients will poll")
	}

	logging.Ctx(ctx).Debug().
		Str("tenant", ev.TenantID).
		Str("event_type", string(ev.Type)).
		Str("event_id", ev.ID.String()).
		Int("recipients", len(recipients)).
		Msg("event broadcast")
	return len(recipients), nil
}

func (b *Broadcaster) publishLive(ev *events.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	msg := message.NewMessage(ev.ID.String(), data)
	msg.Metadata.Set("tenant_id", ev.TenantID)
	msg.Metadata.Set("event_type", string(ev.Type))
	return b.pub.Publish(EventTopic(ev.TenantID), msg)
}

// nextChange builds an EntityChange with a freshly assigned version.
func (b *Broadcaster) nextChange(entityType, entityID string, op events.Operation, changes ...events.FieldChange) events.EntityChange {
	v := b.versions.NextVersion(EntityKey(entityType, entityID))
	return events.EntityChange{
		EntityType:      entityType,
		EntityID:        entityID,
		Operation:       op,
		Version:         v,
		PreviousVersion: v - 1,
		Changes:         changes,
	}
}

// orderLinePayload is the wire shape of one line inside order payloads.
type orderLinePayload struct {
	ItemID      uuid.UUID         `json:"item_id"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	Station     models.Station    `json:"station"`
	Status      models.ItemStatus `json:"status"`
}

type orderPayload struct {
	OrderID     uuid.UUID          `json:"order_id"`
	TableNumber string             `json:"table_number"`
	WaiterID    string             `json:"waiter_id,omitempty"`
	TotalCents  int64              `json:"total_cents"`
	Lines       []orderLinePayload `json:"lines"`
}

func payloadForOrder(order *models.Order) orderPayload {
	p := orderPayload{
		OrderID:     order.ID,
		TableNumber: order.TableNumber,
		WaiterID:    order.WaiterID,
		TotalCents:  order.TotalCents,
	}
	for i := range order.Lines {
		p.Lines = append(p.Lines, orderLinePayload{
			ItemID:      order.Lines[i].ID,
			ProductName: order.Lines[i].ProductName,
			Quantity:    order.Lines[i].Quantity,
			Station:     order.Lines[i].Station,
			Status:      order.Lines[i].Status,
		})
	}
	return p
}

// PublishNewOrder emits the order-new event for a freshly persisted
// order. Targets are the roles working the stations the order's lines
// belong to, plus the supervisor.
func (b *Broadcaster) PublishNewOrder(ctx context.Context, order *models.Order) (*events.Event, error) {
	ev := events.New(order.TenantID, events.TypeOrderNew)
	ev.CorrelationID = order.ID.String()
	ev.TargetRoles = stationRolesWithSupervisor(order)
	ev.EntityChanges = []events.EntityChange{
		b.nextChange("order", order.ID.String(), events.OpCreate),
	}
	if err := ev.SetPayload(payloadForOrder(order)); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func stationRolesWithSupervisor(order *models.Order) []models.Role {
	seen := map[models.Role]struct{}{models.RoleSupervisore: {}}
	roles := []models.Role{models.RoleSupervisore}
	for i := range order.Lines {
		r := events.StationRole(order.Lines[i].Station)
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	return roles
}

// PublishItemStatusChange emits the fine-grained event for one line's
// status transition. A transition to PRONTO becomes an order-ready event
// (HIGH, acknowledgment-required, targeted at the waiter and supervisor
// per policy); everything else is a routine order-update.
func (b *Broadcaster) PublishItemStatusChange(ctx context.Context, order *models.Order, line *models.OrderLine, previous models.ItemStatus) (*events.Event, error) {
	typ := events.TypeOrderUpdate
	if line.Status == models.ItemPronto {
		typ = events.TypeOrderReady
	}

	ev := events.New(order.TenantID, typ)
	ev.CorrelationID = order.ID.String()
	if typ == events.TypeOrderUpdate {
		ev.TargetRoles = []models.Role{models.RoleCameriere, models.RoleSupervisore}
	}
	ev.EntityChanges = []events.EntityChange{
		b.nextChange("order", order.ID.String(), events.OpUpdate, events.FieldChange{
			Field: "item_status:" + line.ID.String(),
			Old:   string(previous),
			New:   string(line.Status),
		}),
	}
	if err := ev.SetPayload(struct {
		orderPayload
		ItemID     uuid.UUID         `json:"item_id"`
		ItemStatus models.ItemStatus `json:"item_status"`
	}{payloadForOrder(order), line.ID, line.Status}); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishOrderStatusChange emits the event for a whole-order transition.
func (b *Broadcaster) PublishOrderStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) (*events.Event, error) {
	var typ events.Type
	switch order.Status {
	case models.OrderPronto:
		typ = events.TypeOrderReady
	case models.OrderConsegnato:
		typ = events.TypeOrderDelivered
	default:
		typ = events.TypeOrderUpdate
	}

	ev := events.New(order.TenantID, typ)
	ev.CorrelationID = order.ID.String()
	ev.EntityChanges = []events.EntityChange{
		b.nextChange("order", order.ID.String(), events.OpUpdate, events.FieldChange{
			Field: "status",
			Old:   string(previous),
			New:   string(order.Status),
		}),
	}
	if err := ev.SetPayload(payloadForOrder(order)); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishPaymentRequest emits the acknowledgment-required event asking
// the register to settle a table. It remains queued for an offline CASSA
// client until reconnection.
func (b *Broadcaster) PublishPaymentRequest(ctx context.Context, tenantID string, orderID uuid.UUID, tableNumber string, amountCents int64) (*events.Event, error) {
	ev := events.New(tenantID, events.TypePaymentRequested)
	ev.CorrelationID = orderID.String()
	ev.EntityChanges = []events.EntityChange{
		b.nextChange("payment", orderID.String(), events.OpCreate),
	}
	if err := ev.SetPayload(struct {
		OrderID     uuid.UUID `json:"order_id"`
		TableNumber string    `json:"table_number"`
		AmountCents int64     `json:"amount_cents"`
	}{orderID, tableNumber, amountCents}); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishInventoryExhausted announces that a product ran out. Urgent and
// tenant-wide: every role needs to stop offering the product.
func (b *Broadcaster) PublishInventoryExhausted(ctx context.Context, tenantID, productName string) (*events.Event, error) {
	ev := events.New(tenantID, events.TypeInventoryExhausted)
	ev.EntityChanges = []events.EntityChange{
		b.nextChange("inventory", productName, events.OpUpdate, events.FieldChange{
			Field: "available", Old: "true", New: "false",
		}),
	}
	if err := ev.SetPayload(struct {
		ProductName string `json:"product_name"`
	}{productName}); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishEntityChange emits a generic entity lifecycle event.
func (b *Broadcaster) PublishEntityChange(ctx context.Context, tenantID, entityType, entityID string, op events.Operation, changes []events.FieldChange, targetRoles ...models.Role) (*events.Event, error) {
	var typ events.Type
	switch op {
	case events.OpCreate:
		typ = events.TypeEntityCreated
	case events.OpDelete:
		typ = events.TypeEntityDeleted
	default:
		typ = events.TypeEntityUpdated
	}

	ev := events.New(tenantID, typ)
	ev.TargetRoles = targetRoles
	ev.EntityChanges = []events.EntityChange{
		b.nextChange(entityType, entityID, op, changes...),
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishBulkUpdate emits one event covering many entities. Each entity
// still gets its own EntityChange and version increment so per-entity
// gaps stay individually detectable on the client.
func (b *Broadcaster) PublishBulkUpdate(ctx context.Context, tenantID, entityType string, entityIDs []string, op events.Operation) (*events.Event, error) {
	ev := events.New(tenantID, events.TypeBulkUpdate)
	ev.EntityChanges = make([]events.EntityChange, 0, len(entityIDs))
	for _, id := range entityIDs {
		ev.EntityChanges = append(ev.EntityChanges, b.nextChange(entityType, id, op))
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishSyncCompleted emits the low-priority sync summary event.
func (b *Broadcaster) PublishSyncCompleted(ctx context.Context, tenantID string, newOrders, updatedOrders, deletedOrders int, durationMs int64) (*events.Event, error) {
	ev := events.New(tenantID, events.TypeSyncCompleted)
	if err := ev.SetPayload(struct {
		NewOrders      int   `json:"new_orders"`
		UpdatedOrders  int   `json:"updated_orders"`
		DeletedOrders  int   `json:"deleted_orders"`
		SyncDurationMs int64 `json:"sync_duration_ms"`
	}{newOrders, updatedOrders, deletedOrders, durationMs}); err != nil {
		return nil, err
	}
	if _, err := b.Broadcast(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
