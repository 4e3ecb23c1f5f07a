// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package memory implements storage.Store on process memory. It backs
// tests and single-shift throwaway deployments; production uses the
// sqlite implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

// Store holds orders and users keyed by tenant. All methods are safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	orders map[string]map[uuid.UUID]*models.Order // tenant -> order ID
	users  map[string]map[string]*models.User     // tenant -> username
}

// New creates an empty store.
func New() *Store {
	return &Store{
		orders: make(map[string]map[uuid.UUID]*models.Order),
		users:  make(map[string]map[string]*models.User),
	}
}

// CreateOrder persists a new order.
func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.orders[order.TenantID]
	if !ok {
		tenant = make(map[uuid.UUID]*models.Order)
		s.orders[order.TenantID] = tenant
	}
	tenant[order.ID] = order.Clone()
	return nil
}

// SaveOrder replaces the stored order.
func (s *Store) SaveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.orders[order.TenantID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	if _, ok := tenant[order.ID]; !ok {
		return storage.ErrOrderNotFound
	}
	tenant[order.ID] = order.Clone()
	return nil
}

// LoadOrderByID returns a copy of one order.
func (s *Store) LoadOrderByID(_ context.Context, tenantID string, orderID uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[tenantID][orderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// LoadActiveOrders returns the tenant's orders still on the live floor.
func (s *Store) LoadActiveOrders(_ context.Context, tenantID string) ([]*models.Order, error) {
	active := make(map[models.OrderStatus]struct{})
	for _, st := range models.ActiveOrderStatuses() {
		active[st] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, order := range s.orders[tenantID] {
		if _, ok := active[order.Status]; ok {
			out = append(out, order.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

// LoadOrdersUpdatedSince returns orders touched at or after the instant.
func (s *Store) LoadOrdersUpdatedSince(_ context.Context, tenantID string, since time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, order := range s.orders[tenantID] {
		if !order.UpdatedAt.Before(since) {
			out = append(out, order.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(orders []*models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID.String() < orders[j].ID.String()
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// FindUsersByTenantAndRoles returns the tenant's active users holding any
// of the given roles.
func (s *Store) FindUsersByTenantAndRoles(_ context.Context, tenantID string, roles []models.Role) ([]models.UserRef, error) {
	wanted := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		wanted[r] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UserRef
	for _, u := range s.users[tenantID] {
		if !u.Active {
			continue
		}
		if _, ok := wanted[u.Role]; ok {
			out = append(out, u.Ref())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUserByUsername returns the full account record.
func (s *Store) GetUserByUsername(_ context.Context, tenantID, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[tenantID][username]
	if !ok || !u.Active {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// UpsertUser creates or replaces an account.
func (s *Store) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.users[user.TenantID]
	if !ok {
		tenant = make(map[string]*models.User)
		s.users[user.TenantID] = tenant
	}
	cp := *user
	tenant[user.Username] = &cp
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
