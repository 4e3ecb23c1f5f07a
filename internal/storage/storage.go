// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package storage defines the persistence boundary of the server. The
// sync service, the broadcast service and the API consume these
// interfaces; implementations live in the memory and sqlite
// sub-packages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

var (
	// ErrOrderNotFound is returned when an order does not exist in the
	// caller's tenant.
	ErrOrderNotFound = errors.New("order not found")

	// ErrItemNotFound is returned when an order line does not exist on
	// the order.
	ErrItemNotFound = errors.New("order item not found")

	// ErrUserNotFound is returned by user lookups for unknown accounts.
	ErrUserNotFound = errors.New("user not found")

	// ErrVersionConflict is returned when a conditional write loses to a
	// concurrent update.
	ErrVersionConflict = errors.New("version conflict")
)

// OrderStore is the order persistence surface the sync service polls and
// the API mutates through.
type OrderStore interface {
	// CreateOrder persists a new order with its lines.
	CreateOrder(ctx context.Context, order *models.Order) error

	// SaveOrder replaces the stored order and its lines.
	SaveOrder(ctx context.Context, order *models.Order) error

	// LoadOrderByID returns one order. ErrOrderNotFound when absent.
	LoadOrderByID(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.Order, error)

	// LoadActiveOrders returns every order of the tenant still in an
	// active state, with lines, ordered by creation time.
	LoadActiveOrders(ctx context.Context, tenantID string) ([]*models.Order, error)

	// LoadOrdersUpdatedSince returns orders of the tenant touched at or
	// after the given instant, active or not; the incremental sync pass
	// uses it to pick up terminal transitions too.
	LoadOrdersUpdatedSince(ctx context.Context, tenantID string, since time.Time) ([]*models.Order, error)
}

// UserStore is the account surface: the broadcast service resolves
// fan-out targets through it and the auth layer verifies credentials.
type UserStore interface {
	// FindUsersByTenantAndRoles returns the tenant's active users holding
	// any of the given roles.
	FindUsersByTenantAndRoles(ctx context.Context, tenantID string, roles []models.Role) ([]models.UserRef, error)

	// GetUserByUsername returns the full account record, hash included.
	// ErrUserNotFound when absent or inactive.
	GetUserByUsername(ctx context.Context, tenantID, username string) (*models.User, error)

	// UpsertUser creates or replaces an account.
	UpsertUser(ctx context.Context, user *models.User) error
}

// Store is the full persistence surface.
type Store interface {
	OrderStore
	UserStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}
