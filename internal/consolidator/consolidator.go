// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package consolidator derives at most one notification per (table) or
// (table, station) from the current order snapshot, so a burst of
// per-line events never floods a client with one message per item.
//
// The consolidator is a pure function of the snapshot and the clock: it
// holds no state, and identical inputs produce identical output. It is
// a projection, never a source of truth.
package consolidator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// Notification types.
const (
	TypeTableStatus    = "table-status"
	TypeStationStatus  = "station-status"
	TypePaymentRequest = "payment-request"
	TypeReadyItems     = "ready-items"
)

// Station activity levels; ready dominates working dominates idle.
const (
	stationIdle    = "idle"
	stationWorking = "working"
	stationReady   = "ready"
)

// Notification is a derived, non-authoritative view handed to the UI
// layer and discarded after delivery.
type Notification struct {
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Priority     events.Priority `json:"priority"`
	TargetRoles  []models.Role   `json:"target_roles"`
	Timestamp    time.Time       `json:"timestamp"`
	Acknowledged bool            `json:"acknowledged"`
}

// Config holds the station age thresholds.
type Config struct {
	// PriorityAge is the line age past which a station summary escalates
	// to HIGH.
	PriorityAge time.Duration
	// UrgentAge is the line age past which it escalates to URGENT.
	UrgentAge time.Duration
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		PriorityAge: 10 * time.Minute,
		UrgentAge:   20 * time.Minute,
	}
}

// Consolidator computes notification projections.
type Consolidator struct {
	cfg Config
}

// New creates a consolidator. Zero thresholds fall back to defaults.
func New(cfg Config) *Consolidator {
	def := DefaultConfig()
	if cfg.PriorityAge <= 0 {
		cfg.PriorityAge = def.PriorityAge
	}
	if cfg.UrgentAge <= 0 {
		cfg.UrgentAge = def.UrgentAge
	}
	return &Consolidator{cfg: cfg}
}

// Consolidate computes the full notification set for a snapshot. Output
// order is deterministic: by type, then by table or station key.
func (c *Consolidator) Consolidate(orders []*models.Order, now time.Time) []Notification {
	var out []Notification
	out = append(out, c.tableNotifications(orders, now)...)
	out = append(out, c.stationNotifications(orders, now)...)
	out = append(out, c.paymentNotifications(orders, now)...)
	out = append(out, c.readyItemNotifications(orders, now)...)
	return out
}

// ForRole filters the consolidated set down to one recipient role.
func ForRole(notifications []Notification, role models.Role) []Notification {
	var out []Notification
	for _, n := range notifications {
		for _, r := range n.TargetRoles {
			if r == role || role == models.RoleAdmin || role == models.RoleSupervisore {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

type stationBucket struct {
	ready   int
	working int
	idle    int
}

func (b stationBucket) status() string {
	switch {
	case b.ready > 0:
		return stationReady
	case b.working > 0:
		return stationWorking
	default:
		return stationIdle
	}
}

// tableNotifications synthesizes one table-status message per table with
// any ready or working lines: counts per station, HIGH when anything is
// ready.
func (c *Consolidator) tableNotifications(orders []*models.Order, now time.Time) []Notification {
	byTable := make(map[string]map[models.Station]*stationBucket)
	for _, order := range orders {
		for i := range order.Lines {
			line := &order.Lines[i]
			stations, ok := byTable[order.TableNumber]
			if !ok {
				stations = make(map[models.Station]*stationBucket)
				byTable[order.TableNumber] = stations
			}
			bucket, ok := stations[line.Station]
			if !ok {
				bucket = &stationBucket{}
				stations[line.Station] = bucket
			}
			switch line.Status {
			case models.ItemPronto:
				bucket.ready += line.Quantity
			case models.ItemInLavorazione:
				bucket.working += line.Quantity
			case models.ItemInserito:
				bucket.idle += line.Quantity
			}
		}
	}

	tables := sortedKeys(byTable)
	var out []Notification
	for _, table := range tables {
		stations := byTable[table]
		anyReady := false
		anyWorking := false
		var parts []string
		for _, station := range sortedStations(stations) {
			bucket := stations[station]
			switch bucket.status() {
			case stationReady:
				anyReady = true
				parts = append(parts, fmt.Sprintf("%d ready at %s", bucket.ready, station))
			case stationWorking:
				anyWorking = true
				parts = append(parts, fmt.Sprintf("%d in preparation at %s", bucket.working, station))
			}
		}
		if !anyReady && !anyWorking {
			continue
		}

		priority := events.PriorityNormal
		if anyReady {
			priority = events.PriorityHigh
		}
		out = append(out, Notification{
			Type:        TypeTableStatus,
			Title:       "Table " + table,
			Message:     strings.Join(parts, ", "),
			Priority:    priority,
			TargetRoles: []models.Role{models.RoleCameriere, models.RoleSupervisore},
			Timestamp:   now,
		})
	}
	return out
}

// stationNotifications classifies each station's pending lines by age and
// enumerates the affected tables.
func (c *Consolidator) stationNotifications(orders []*models.Order, now time.Time) []Notification {
	type pending struct {
		tables    map[string]struct{}
		oldest    time.Duration
		count     int
		aged      bool
		urgentAge bool
	}
	byStation := make(map[models.Station]*pending)

	for _, order := range orders {
		for i := range order.Lines {
			line := &order.Lines[i]
			if line.Status != models.ItemInserito && line.Status != models.ItemInLavorazione {
				continue
			}
			p, ok := byStation[line.Station]
			if !ok {
				p = &pending{tables: make(map[string]struct{})}
				byStation[line.Station] = p
			}
			p.tables[order.TableNumber] = struct{}{}
			p.count += line.Quantity
			age := now.Sub(line.CreatedAt)
			if age > p.oldest {
				p.oldest = age
			}
			if age > c.cfg.UrgentAge {
				p.urgentAge = true
			} else if age > c.cfg.PriorityAge {
				p.aged = true
			}
		}
	}

	var out []Notification
	for _, station := range sortedStations(byStation) {
		p := byStation[station]
		priority := events.PriorityNormal
		switch {
		case p.urgentAge:
			priority = events.PriorityUrgent
		case p.aged:
			priority = events.PriorityHigh
		}

		tables := sortedKeys(p.tables)
		out = append(out, Notification{
			Type:  TypeStationStatus,
			Title: string(station),
			Message: fmt.Sprintf("%d items pending for tables %s",
				p.count, strings.Join(tables, ", ")),
			Priority:    priority,
			TargetRoles: []models.Role{events.StationRole(station), models.RoleSupervisore},
			Timestamp:   now,
		})
	}
	return out
}

// paymentNotifications flags every table asking for the bill.
func (c *Consolidator) paymentNotifications(orders []*models.Order, now time.Time) []Notification {
	byTable := make(map[string]int64)
	for _, order := range orders {
		if order.Status == models.OrderRichiestaConto {
			byTable[order.TableNumber] += order.TotalCents
		}
	}

	var out []Notification
	for _, table := range sortedKeys(byTable) {
		cents := byTable[table]
		out = append(out, Notification{
			Type:        TypePaymentRequest,
			Title:       "Table " + table,
			Message:     fmt.Sprintf("bill requested, %d.%02d due", cents/100, cents%100),
			Priority:    events.PriorityHigh,
			TargetRoles: []models.Role{models.RoleCassa, models.RoleSupervisore},
			Timestamp:   now,
		})
	}
	return out
}

// readyItemNotifications lists each table's ready lines for pickup,
// naming every product with its aggregate quantity ("Espresso x2").
func (c *Consolidator) readyItemNotifications(orders []*models.Order, now time.Time) []Notification {
	byTable := make(map[string]map[string]int)
	for _, order := range orders {
		for i := range order.Lines {
			line := &order.Lines[i]
			if line.Status != models.ItemPronto {
				continue
			}
			if byTable[order.TableNumber] == nil {
				byTable[order.TableNumber] = make(map[string]int)
			}
			byTable[order.TableNumber][line.ProductName] += line.Quantity
		}
	}

	var out []Notification
	for _, table := range sortedKeys(byTable) {
		products := byTable[table]
		listing := make([]string, 0, len(products))
		for _, name := range sortedKeys(products) {
			listing = append(listing, fmt.Sprintf("%s x%d", name, products[name]))
		}
		out = append(out, Notification{
			Type:        TypeReadyItems,
			Title:       "Table " + table,
			Message:     "ready for pickup: " + strings.Join(listing, ", "),
			Priority:    events.PriorityHigh,
			TargetRoles: []models.Role{models.RoleCameriere, models.RoleSupervisore},
			Timestamp:   now,
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStations[V any](m map[models.Station]V) []models.Station {
	keys := make([]models.Station, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
