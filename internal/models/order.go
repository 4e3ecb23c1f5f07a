// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package models holds the shared domain types: orders, order lines,
// preparation stations, roles and users. These are plain data structures;
// all mutation logic lives in the sync service and the persistence layer.
package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOrdinato       OrderStatus = "ORDINATO"
	OrderInLavorazione  OrderStatus = "IN_LAVORAZIONE"
	OrderPronto         OrderStatus = "PRONTO"
	OrderConsegnato     OrderStatus = "CONSEGNATO"
	OrderRichiestaConto OrderStatus = "RICHIESTA_CONTO"
	OrderPagato         OrderStatus = "PAGATO"
	OrderAnnullato      OrderStatus = "ANNULLATO"
)

// ActiveOrderStatuses returns the states an order can be in while it still
// belongs to the live floor view. The sync service loads exactly this set
// on a full refresh.
func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderOrdinato, OrderInLavorazione, OrderPronto, OrderRichiestaConto}
}

// ItemStatus is the preparation state of a single order line.
type ItemStatus string

const (
	ItemInserito      ItemStatus = "INSERITO"
	ItemInLavorazione ItemStatus = "IN_LAVORAZIONE"
	ItemPronto        ItemStatus = "PRONTO"
	ItemConsegnato    ItemStatus = "CONSEGNATO"
	ItemAnnullato     ItemStatus = "ANNULLATO"
)

// Valid reports whether the status belongs to the closed set.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemInserito, ItemInLavorazione, ItemPronto, ItemConsegnato, ItemAnnullato:
		return true
	}
	return false
}

// Station is a preparation area that owns a subset of order lines.
type Station string

const (
	// StationBanco is the bar counter.
	StationBanco Station = "BANCO"
	// StationCucina is the kitchen.
	StationCucina Station = "CUCINA"
)

// Valid reports whether the station belongs to the closed set.
func (s Station) Valid() bool {
	return s == StationBanco || s == StationCucina
}

// OrderLine is a single product on an order, owned by one station.
type OrderLine struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	PriceCents  int64      `json:"price_cents"`
	Station     Station    `json:"station"`
	Status      ItemStatus `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
}

// Order is a table order with its lines. Monetary amounts are integer
// cents; 8.40 EUR is TotalCents == 840.
type Order struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    string      `json:"tenant_id"`
	TableNumber string      `json:"table_number"`
	WaiterID    string      `json:"waiter_id,omitempty"`
	Status      OrderStatus `json:"status"`
	Lines       []OrderLine `json:"lines"`
	TotalCents  int64       `json:"total_cents"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Line returns the line with the given ID, or nil if absent.
func (o *Order) Line(id uuid.UUID) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// HasReadyLines reports whether any line is waiting to be picked up.
func (o *Order) HasReadyLines() bool {
	for i := range o.Lines {
		if o.Lines[i].Status == ItemPronto {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The sync cache hands out clones so callers
// can never mutate cached state behind the service's back.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Lines = make([]OrderLine, len(o.Lines))
	copy(cp.Lines, o.Lines)
	for i := range cp.Lines {
		if o.Lines[i].ReadyAt != nil {
			t := *o.Lines[i].ReadyAt
			cp.Lines[i].ReadyAt = &t
		}
	}
	return &cp
}

// RecomputeTotal recalculates TotalCents from the non-canceled lines.
func (o *Order) RecomputeTotal() {
	var total int64
	for i := range o.Lines {
		if o.Lines[i].Status == ItemAnnullato {
			continue
		}
		total += o.Lines[i].PriceCents * int64(o.Lines[i].Quantity)
	}
	o.TotalCents = total
}
