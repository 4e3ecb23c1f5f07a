// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

var _ storage.Store = (*Store)(nil)

func sampleOrder(tenantID string, status models.OrderStatus, created time.Time) *models.Order {
	order := &models.Order{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TableNumber: "12",
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
		Lines: []models.OrderLine{
			{
				ID:          uuid.New(),
				ProductName: "Espresso",
				Quantity:    2,
				PriceCents:  120,
				Station:     models.StationBanco,
				Status:      models.ItemInserito,
				CreatedAt:   created,
				UpdatedAt:   created,
			},
		},
	}
	order.RecomputeTotal()
	return order
}

func TestStore_CreateAndLoad(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	order := sampleOrder("roxy", models.OrderOrdinato, time.Now().UTC())

	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, err := s.LoadOrderByID(ctx, "roxy", order.ID)
	if err != nil {
		t.Fatalf("LoadOrderByID: %v", err)
	}
	if got.TotalCents != 240 {
		t.Errorf("TotalCents = %d, want 240", got.TotalCents)
	}

	// The store hands out copies; mutating the result must not leak back.
	got.Lines[0].Status = models.ItemPronto
	again, _ := s.LoadOrderByID(ctx, "roxy", order.ID)
	if again.Lines[0].Status != models.ItemInserito {
		t.Error("mutation of a loaded order leaked into the store")
	}
}

func TestStore_LoadActiveOrders(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	older := sampleOrder("roxy", models.OrderOrdinato, now.Add(-time.Minute))
	newer := sampleOrder("roxy", models.OrderPronto, now)
	paid := sampleOrder("roxy", models.OrderPagato, now)
	elsewhere := sampleOrder("other-bar", models.OrderOrdinato, now)
	for _, o := range []*models.Order{newer, older, paid, elsewhere} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	got, err := s.LoadActiveOrders(ctx, "roxy")
	if err != nil {
		t.Fatalf("LoadActiveOrders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("active orders = %d, want 2", len(got))
	}
	if got[0].ID != older.ID || got[1].ID != newer.ID {
		t.Error("active orders not in creation order")
	}
}

func TestStore_LoadOrdersUpdatedSince(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	stale := sampleOrder("roxy", models.OrderOrdinato, now.Add(-time.Hour))
	fresh := sampleOrder("roxy", models.OrderPagato, now)
	for _, o := range []*models.Order{stale, fresh} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	got, err := s.LoadOrdersUpdatedSince(ctx, "roxy", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("LoadOrdersUpdatedSince: %v", err)
	}
	// Terminal states are included; the incremental pass needs them to
	// retire cached orders.
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Errorf("incremental load returned %d orders, want only the fresh one", len(got))
	}
}

func TestStore_SaveOrderUnknownFails(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.SaveOrder(context.Background(), sampleOrder("roxy", models.OrderOrdinato, time.Now().UTC()))
	if !errors.Is(err, storage.ErrOrderNotFound) {
		t.Errorf("SaveOrder on unknown order = %v, want ErrOrderNotFound", err)
	}
}

func TestStore_Users(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	users := []*models.User{
		{UserRef: models.UserRef{ID: "u1", Username: "anna", TenantID: "roxy", Role: models.RoleCameriere}, Active: true},
		{UserRef: models.UserRef{ID: "u2", Username: "bruno", TenantID: "roxy", Role: models.RoleCassa}, Active: true},
		{UserRef: models.UserRef{ID: "u3", Username: "carla", TenantID: "roxy", Role: models.RoleCassa}, Active: false},
		{UserRef: models.UserRef{ID: "u4", Username: "dario", TenantID: "other-bar", Role: models.RoleCassa}, Active: true},
	}
	for _, u := range users {
		if err := s.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}

	got, err := s.FindUsersByTenantAndRoles(ctx, "roxy", []models.Role{models.RoleCassa})
	if err != nil {
		t.Fatalf("FindUsersByTenantAndRoles: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u2" {
		t.Errorf("role lookup returned %d users, want only the active roxy cashier", len(got))
	}

	if _, err := s.GetUserByUsername(ctx, "roxy", "carla"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("inactive user lookup = %v, want ErrUserNotFound", err)
	}
	u, err := s.GetUserByUsername(ctx, "roxy", "anna")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.Role != models.RoleCameriere {
		t.Errorf("role = %s, want CAMERIERE", u.Role)
	}
}
