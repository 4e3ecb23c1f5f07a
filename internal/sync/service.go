// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package sync keeps an in-memory active-orders cache consistent with
// persistent storage while minimizing read load. The cache is the single
// shared source of "current active orders" for consolidation and the API;
// the store remains the source of truth and the cache is reconciled
// toward it by full and incremental sync passes.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

var (
	// ErrOrderNotCached is returned when an optimistic update targets an
	// order absent from both the cache and the store.
	ErrOrderNotCached = errors.New("order not in cache or store")

	// ErrItemNotFound is returned when the order exists but the line does
	// not.
	ErrItemNotFound = errors.New("order item not found")

	// ErrInvalidStatus is returned for a status outside the closed set.
	ErrInvalidStatus = errors.New("invalid item status")
)

// UpdatePhase is the lifecycle of one order's latest optimistic update.
type UpdatePhase string

const (
	// PhaseOptimistic means the cache mutation is visible to clients but
	// the authoritative write has not completed.
	PhaseOptimistic UpdatePhase = "OPTIMISTIC"
	// PhaseConfirmed means the authoritative write committed.
	PhaseConfirmed UpdatePhase = "CONFIRMED"
	// PhaseRolledBack means the authoritative write failed and the cache
	// was restored from the store.
	PhaseRolledBack UpdatePhase = "ROLLED_BACK"
)

// Result summarizes one sync pass.
type Result struct {
	NewOrders     int           `json:"new_orders"`
	UpdatedOrders int           `json:"updated_orders"`
	DeletedOrders int           `json:"deleted_orders"`
	FullSync      bool          `json:"full_sync"`
	Skipped       bool          `json:"skipped"`
	Duration      time.Duration `json:"-"`
}

// Config tunes the sync service.
type Config struct {
	// FullInterval is the period of the unconditional full refresh.
	FullInterval time.Duration
	// IncrementalInterval is the period of the dirty-queue drain; a tick
	// with an empty dirty queue does nothing.
	IncrementalInterval time.Duration
	// BatchSize bounds how many dirty orders one incremental pass
	// reconciles.
	BatchSize int
	// BreakerThreshold is the consecutive store failures that trip the
	// read breaker.
	BreakerThreshold uint32
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FullInterval:        5 * time.Minute,
		IncrementalInterval: 2 * time.Second,
		BatchSize:           50,
		BreakerThreshold:    5,
		BreakerTimeout:      30 * time.Second,
	}
}

// tenantCache is one tenant's mirror of the active orders.
type tenantCache struct {
	mu        sync.RWMutex
	orders    map[uuid.UUID]*models.Order
	dirty     map[uuid.UUID]struct{}
	phases    map[uuid.UUID]UpdatePhase
	needsFull bool
	lastSync  time.Time

	// syncMu serializes sync passes for this tenant; contenders
	// short-circuit instead of queueing.
	syncMu sync.Mutex
}

func newTenantCache() *tenantCache {
	return &tenantCache{
		orders:    make(map[uuid.UUID]*models.Order),
		dirty:     make(map[uuid.UUID]struct{}),
		phases:    make(map[uuid.UUID]UpdatePhase),
		needsFull: true,
	}
}

// Broadcaster is the slice of the broadcast service the sync service
// publishes through.
type Broadcaster interface {
	PublishItemStatusChange(ctx context.Context, order *models.Order, line *models.OrderLine, previous models.ItemStatus) (*events.Event, error)
	PublishOrderStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) (*events.Event, error)
	PublishSyncCompleted(ctx context.Context, tenantID string, newOrders, updatedOrders, deletedOrders int, durationMs int64) (*events.Event, error)
}

// Service is the orders sync service.
type Service struct {
	store     storage.OrderStore
	broadcast Broadcaster
	cfg       Config
	breaker   *gobreaker.CircuitBreaker[[]*models.Order]

	mu      sync.RWMutex
	tenants map[string]*tenantCache
}

// NewService wires the sync service. Store reads go through a circuit
// breaker so a failing database degrades to a stale cache instead of a
// read storm.
func NewService(store storage.OrderStore, broadcast Broadcaster, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.FullInterval <= 0 {
		cfg.FullInterval = def.FullInterval
	}
	if cfg.IncrementalInterval <= 0 {
		cfg.IncrementalInterval = def.IncrementalInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	s := &Service{
		store:     store,
		broadcast: broadcast,
		cfg:       cfg,
		tenants:   make(map[string]*tenantCache),
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]*models.Order](gobreaker.Settings{
		Name:    "order-store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("order store breaker state change")
		},
	})
	return s
}

// tenant returns the tenant's cache, creating it on first use. A fresh
// cache starts stale so its first pass is a full sync.
func (s *Service) tenant(tenantID string) *tenantCache {
	s.mu.RLock()
	tc, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if ok {
		return tc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tc, ok = s.tenants[tenantID]; ok {
		return tc
	}
	tc = newTenantCache()
	s.tenants[tenantID] = tc
	return tc
}

// Tenants returns the tenants with a live cache.
func (s *Service) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SyncOrders runs one sync pass for the tenant: full when forced or the
// cache is flagged stale, incremental otherwise. A pass already in flight
// makes this call return immediately with Skipped set and the cache
// untouched.
func (s *Service) SyncOrders(ctx context.Context, tenantID string, force bool) (Result, error) {
	tc := s.tenant(tenantID)

	if !tc.syncMu.TryLock() {
		return Result{Skipped: true}, nil
	}
	defer tc.syncMu.Unlock()

	start := time.Now()

	tc.mu.RLock()
	full := force || tc.needsFull
	tc.mu.RUnlock()

	var (
		res Result
		err error
	)
	if full {
		res, err = s.fullSync(ctx, tenantID, tc)
	} else {
		res, err = s.incrementalSync(ctx, tenantID, tc)
	}
	res.Duration = time.Since(start)
	res.FullSync = full

	kind := "incremental"
	if full {
		kind = "full"
	}
	if err != nil {
		metrics.SyncErrors.WithLabelValues(kind).Inc()
		logging.Error().Err(err).
			Str("tenant", tenantID).
			Str("kind", kind).
			Msg("sync pass failed, cache kept stale")
		return res, err
	}

	metrics.SyncDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
	metrics.SyncLastSuccess.SetToCurrentTime()
	s.setCachedOrdersMetric()

	if res.NewOrders+res.UpdatedOrders+res.DeletedOrders > 0 {
		if _, pubErr := s.broadcast.PublishSyncCompleted(ctx, tenantID,
			res.NewOrders, res.UpdatedOrders, res.DeletedOrders, res.Duration.Milliseconds()); pubErr != nil {
			logging.Warn().Err(pubErr).Str("tenant", tenantID).Msg("sync-completed publish failed")
		}
	}

	logging.Debug().
		Str("tenant", tenantID).
		Str("kind", kind).
		Int("new", res.NewOrders).
		Int("updated", res.UpdatedOrders).
		Int("deleted", res.DeletedOrders).
		Dur("took", res.Duration).
		Msg("sync pass completed")
	return res, nil
}

// fullSync reloads every active order and replaces the cache wholesale.
// On failure the previous cache stays in place and the staleness marker
// stays set.
func (s *Service) fullSync(ctx context.Context, tenantID string, tc *tenantCache) (Result, error) {
	loaded, err := s.breaker.Execute(func() ([]*models.Order, error) {
		return s.store.LoadActiveOrders(ctx, tenantID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("load active orders: %w", err)
	}

	fresh := make(map[uuid.UUID]*models.Order, len(loaded))
	for _, o := range loaded {
		fresh[o.ID] = o
	}

	var res Result
	tc.mu.Lock()
	for id, o := range fresh {
		prev, ok := tc.orders[id]
		switch {
		case !ok:
			res.NewOrders++
		case !prev.UpdatedAt.Equal(o.UpdatedAt):
			res.UpdatedOrders++
		}
	}
	for id := range tc.orders {
		if _, ok := fresh[id]; !ok {
			res.DeletedOrders++
		}
	}
	tc.orders = fresh
	tc.dirty = make(map[uuid.UUID]struct{})
	tc.needsFull = false
	tc.lastSync = time.Now().UTC()
	tc.mu.Unlock()
	return res, nil
}

// incrementalSync reconciles a bounded batch of dirty orders plus any
// order touched since the last pass.
func (s *Service) incrementalSync(ctx context.Context, tenantID string, tc *tenantCache) (Result, error) {
	tc.mu.Lock()
	batch := make([]uuid.UUID, 0, s.cfg.BatchSize)
	for id := range tc.dirty {
		if len(batch) == s.cfg.BatchSize {
			break
		}
		batch = append(batch, id)
		delete(tc.dirty, id)
	}
	since := tc.lastSync
	tc.mu.Unlock()

	var res Result
	for _, id := range batch {
		if err := s.reconcileOrder(ctx, tenantID, tc, id, &res); err != nil {
			// Put the ID back so the next pass retries it.
			tc.mu.Lock()
			tc.dirty[id] = struct{}{}
			tc.mu.Unlock()
			return res, err
		}
	}

	touched, err := s.breaker.Execute(func() ([]*models.Order, error) {
		return s.store.LoadOrdersUpdatedSince(ctx, tenantID, since)
	})
	if err != nil {
		return res, fmt.Errorf("load orders updated since %s: %w", since, err)
	}

	active := activeSet()
	tc.mu.Lock()
	for _, o := range touched {
		prev, cached := tc.orders[o.ID]
		if _, isActive := active[o.Status]; !isActive {
			if cached {
				delete(tc.orders, o.ID)
				res.DeletedOrders++
			}
			continue
		}
		switch {
		case !cached:
			tc.orders[o.ID] = o
			res.NewOrders++
		case !prev.UpdatedAt.Equal(o.UpdatedAt):
			tc.orders[o.ID] = o
			res.UpdatedOrders++
		}
	}
	tc.lastSync = time.Now().UTC()
	tc.mu.Unlock()
	return res, nil
}

// reconcileOrder reloads one dirty order from the store and settles its
// optimistic phase.
func (s *Service) reconcileOrder(ctx context.Context, tenantID string, tc *tenantCache, orderID uuid.UUID, res *Result) error {
	loaded, err := s.breaker.Execute(func() ([]*models.Order, error) {
		o, err := s.store.LoadOrderByID(ctx, tenantID, orderID)
		if err != nil {
			return nil, err
		}
		return []*models.Order{o}, nil
	})
	if errors.Is(err, storage.ErrOrderNotFound) {
		tc.mu.Lock()
		if _, ok := tc.orders[orderID]; ok {
			delete(tc.orders, orderID)
			res.DeletedOrders++
		}
		delete(tc.phases, orderID)
		tc.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile order %s: %w", orderID, err)
	}

	order := loaded[0]
	active := activeSet()
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, isActive := active[order.Status]; !isActive {
		if _, ok := tc.orders[orderID]; ok {
			delete(tc.orders, orderID)
			res.DeletedOrders++
		}
		delete(tc.phases, orderID)
		return nil
	}
	if _, ok := tc.orders[orderID]; ok {
		res.UpdatedOrders++
	} else {
		res.NewOrders++
	}
	tc.orders[orderID] = order
	if tc.phases[orderID] == PhaseOptimistic {
		tc.phases[orderID] = PhaseConfirmed
	}
	return nil
}

func activeSet() map[models.OrderStatus]struct{} {
	set := make(map[models.OrderStatus]struct{})
	for _, st := range models.ActiveOrderStatuses() {
		set[st] = struct{}{}
	}
	return set
}

// MarkStale flags the tenant's cache for a full refresh on the next pass.
func (s *Service) MarkStale(tenantID string) {
	tc := s.tenant(tenantID)
	tc.mu.Lock()
	tc.needsFull = true
	tc.mu.Unlock()
}

// MarkDirty queues an order for the next incremental pass.
func (s *Service) MarkDirty(tenantID string, orderID uuid.UUID) {
	tc := s.tenant(tenantID)
	tc.mu.Lock()
	tc.dirty[orderID] = struct{}{}
	tc.mu.Unlock()
}

// Stale reports whether the tenant's cache awaits a full refresh.
func (s *Service) Stale(tenantID string) bool {
	tc := s.tenant(tenantID)
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.needsFull
}

// LastSync returns the time of the tenant's last successful pass.
func (s *Service) LastSync(tenantID string) time.Time {
	tc := s.tenant(tenantID)
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.lastSync
}

// ActiveOrders returns clones of the tenant's cached orders in creation
// order.
func (s *Service) ActiveOrders(tenantID string) []*models.Order {
	tc := s.tenant(tenantID)
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	out := make([]*models.Order, 0, len(tc.orders))
	for _, o := range tc.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OrderByID returns a clone of one cached order.
func (s *Service) OrderByID(tenantID string, orderID uuid.UUID) (*models.Order, bool) {
	tc := s.tenant(tenantID)
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	o, ok := tc.orders[orderID]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Phase returns the optimistic-update phase of an order, empty when the
// order has no recorded update.
func (s *Service) Phase(tenantID string, orderID uuid.UUID) UpdatePhase {
	tc := s.tenant(tenantID)
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.phases[orderID]
}

// AdmitOrder inserts a freshly created order into the cache. The caller
// has already persisted it and is about to publish order-new.
func (s *Service) AdmitOrder(order *models.Order) {
	tc := s.tenant(order.TenantID)
	tc.mu.Lock()
	tc.orders[order.ID] = order.Clone()
	tc.mu.Unlock()
	s.setCachedOrdersMetric()
}

func (s *Service) setCachedOrdersMetric() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, tc := range s.tenants {
		tc.mu.RLock()
		total += len(tc.orders)
		tc.mu.RUnlock()
	}
	metrics.CachedOrders.Set(float64(total))
}

// Serve runs the full and incremental timers until the context is
// canceled. It implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	fullTicker := time.NewTicker(s.cfg.FullInterval)
	defer fullTicker.Stop()
	incrTicker := time.NewTicker(s.cfg.IncrementalInterval)
	defer incrTicker.Stop()

	logging.Info().
		Dur("full_interval", s.cfg.FullInterval).
		Dur("incremental_interval", s.cfg.IncrementalInterval).
		Int("batch_size", s.cfg.BatchSize).
		Msg("orders sync service started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("orders sync service stopped")
			return ctx.Err()
		case <-fullTicker.C:
			for _, tenantID := range s.Tenants() {
				if _, err := s.SyncOrders(ctx, tenantID, true); err != nil {
					continue
				}
			}
		case <-incrTicker.C:
			for _, tenantID := range s.Tenants() {
				tc := s.tenant(tenantID)
				tc.mu.RLock()
				pending := len(tc.dirty) > 0 || tc.needsFull
				tc.mu.RUnlock()
				if !pending {
					continue
				}
				if _, err := s.SyncOrders(ctx, tenantID, false); err != nil {
					continue
				}
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "orders-sync"
}
