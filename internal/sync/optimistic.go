// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

// UpdateItemStatus applies an optimistic update: the cache mutates and
// the fine-grained event goes out before the store write. The order's
// update phase moves OPTIMISTIC then CONFIRMED on a committed write or
// ROLLED_BACK after the cache is restored from the store on a failed one.
// A rollback is reported through the returned error; the optimistic state
// never survives it.
func (s *Service) UpdateItemStatus(ctx context.Context, tenantID string, orderID, itemID uuid.UUID, newStatus models.ItemStatus) (bool, error) {
	if !newStatus.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	tc := s.tenant(tenantID)
	now := time.Now().UTC()

	tc.mu.Lock()
	order, ok := tc.orders[orderID]
	if !ok {
		tc.mu.Unlock()
		loaded, err := s.store.LoadOrderByID(ctx, tenantID, orderID)
		if err != nil {
			if errors.Is(err, storage.ErrOrderNotFound) {
				return false, ErrOrderNotCached
			}
			return false, fmt.Errorf("load order %s: %w", orderID, err)
		}
		tc.mu.Lock()
		if order, ok = tc.orders[orderID]; !ok {
			order = loaded
			tc.orders[orderID] = order
		}
	}

	line := order.Line(itemID)
	if line == nil {
		tc.mu.Unlock()
		return false, fmt.Errorf("%w: %s on order %s", ErrItemNotFound, itemID, orderID)
	}

	previous := line.Status
	previousOrderStatus := order.Status
	line.Status = newStatus
	line.UpdatedAt = now
	if newStatus == models.ItemPronto && line.ReadyAt == nil {
		t := now
		line.ReadyAt = &t
	}
	if newStatus == models.ItemAnnullato {
		order.RecomputeTotal()
	}
	order.Status = deriveOrderStatus(order)
	order.UpdatedAt = now

	tc.phases[orderID] = PhaseOptimistic
	tc.dirty[orderID] = struct{}{}

	snapshot := order.Clone()
	tc.mu.Unlock()

	// The event goes out before the store round trip so every client sees
	// the transition immediately; the dirty queue reconciles afterwards.
	snapLine := snapshot.Line(itemID)
	if _, err := s.broadcast.PublishItemStatusChange(ctx, snapshot, snapLine, previous); err != nil {
		logging.Warn().Err(err).
			Str("order_id", orderID.String()).
			Msg("optimistic event publish failed")
	}
	if snapshot.Status != previousOrderStatus {
		if _, err := s.broadcast.PublishOrderStatusChange(ctx, snapshot, previousOrderStatus); err != nil {
			logging.Warn().Err(err).
				Str("order_id", orderID.String()).
				Msg("order status event publish failed")
		}
	}

	if err := s.store.SaveOrder(ctx, snapshot); err != nil {
		s.rollbackOrder(ctx, tenantID, tc, orderID)
		return false, fmt.Errorf("authoritative write for order %s: %w", orderID, err)
	}

	tc.mu.Lock()
	if tc.phases[orderID] == PhaseOptimistic {
		tc.phases[orderID] = PhaseConfirmed
	}
	tc.mu.Unlock()
	return true, nil
}

// SetOrderStatus applies a register-owned whole-order transition, such
// as RICHIESTA_CONTO when the bill is requested or PAGATO when it is
// settled. The flow is the same optimistic publish-then-persist as
// item updates. Returns the updated snapshot.
func (s *Service) SetOrderStatus(ctx context.Context, tenantID string, orderID uuid.UUID, newStatus models.OrderStatus) (*models.Order, error) {
	switch newStatus {
	case models.OrderRichiestaConto, models.OrderPagato, models.OrderAnnullato:
	default:
		return nil, fmt.Errorf("%w: %q is derived from lines, not set directly", ErrInvalidStatus, newStatus)
	}

	tc := s.tenant(tenantID)
	now := time.Now().UTC()

	tc.mu.Lock()
	order, ok := tc.orders[orderID]
	if !ok {
		tc.mu.Unlock()
		loaded, err := s.store.LoadOrderByID(ctx, tenantID, orderID)
		if err != nil {
			if errors.Is(err, storage.ErrOrderNotFound) {
				return nil, ErrOrderNotCached
			}
			return nil, fmt.Errorf("load order %s: %w", orderID, err)
		}
		tc.mu.Lock()
		if order, ok = tc.orders[orderID]; !ok {
			order = loaded
			tc.orders[orderID] = order
		}
	}

	previous := order.Status
	order.Status = newStatus
	order.UpdatedAt = now

	tc.phases[orderID] = PhaseOptimistic
	tc.dirty[orderID] = struct{}{}

	snapshot := order.Clone()
	tc.mu.Unlock()

	if _, err := s.broadcast.PublishOrderStatusChange(ctx, snapshot, previous); err != nil {
		logging.Warn().Err(err).
			Str("order_id", orderID.String()).
			Msg("order status event publish failed")
	}

	if err := s.store.SaveOrder(ctx, snapshot); err != nil {
		s.rollbackOrder(ctx, tenantID, tc, orderID)
		return nil, fmt.Errorf("authoritative write for order %s: %w", orderID, err)
	}

	tc.mu.Lock()
	if tc.phases[orderID] == PhaseOptimistic {
		tc.phases[orderID] = PhaseConfirmed
	}
	tc.mu.Unlock()
	return snapshot, nil
}

// rollbackOrder restores one order's cache entry from the store after a
// failed authoritative write and announces the corrected state.
func (s *Service) rollbackOrder(ctx context.Context, tenantID string, tc *tenantCache, orderID uuid.UUID) {
	metrics.OptimisticRollbacks.Inc()

	loaded, err := s.store.LoadOrderByID(ctx, tenantID, orderID)

	tc.mu.Lock()
	var snapshot *models.Order
	var previous models.OrderStatus
	switch {
	case err == nil:
		if cached, ok := tc.orders[orderID]; ok {
			previous = cached.Status
		}
		tc.orders[orderID] = loaded
		snapshot = loaded.Clone()
	default:
		// Cannot restore from the store either; drop the entry and let
		// the next full sync rebuild it.
		delete(tc.orders, orderID)
		tc.needsFull = true
	}
	tc.phases[orderID] = PhaseRolledBack
	delete(tc.dirty, orderID)
	tc.mu.Unlock()

	logging.Warn().
		Str("tenant", tenantID).
		Str("order_id", orderID.String()).
		Bool("restored", snapshot != nil).
		Msg("optimistic update rolled back")

	if snapshot != nil {
		if _, pubErr := s.broadcast.PublishOrderStatusChange(ctx, snapshot, previous); pubErr != nil {
			logging.Warn().Err(pubErr).
				Str("order_id", orderID.String()).
				Msg("rollback event publish failed")
		}
	}
}

// deriveOrderStatus computes the whole-order status from its lines.
// Register-owned states are never overridden by line transitions.
func deriveOrderStatus(o *models.Order) models.OrderStatus {
	switch o.Status {
	case models.OrderRichiestaConto, models.OrderPagato, models.OrderAnnullato:
		return o.Status
	}

	var total, delivered, ready, working int
	for i := range o.Lines {
		switch o.Lines[i].Status {
		case models.ItemAnnullato:
			continue
		case models.ItemConsegnato:
			delivered++
		case models.ItemPronto:
			ready++
		case models.ItemInLavorazione:
			working++
		}
		total++
	}

	switch {
	case total == 0:
		return models.OrderAnnullato
	case delivered == total:
		return models.OrderConsegnato
	case delivered+ready == total:
		return models.OrderPronto
	case working+ready+delivered > 0:
		return models.OrderInLavorazione
	default:
		return models.OrderOrdinato
	}
}
