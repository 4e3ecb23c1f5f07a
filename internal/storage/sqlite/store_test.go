// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "roxy.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOrder(tenantID string) *models.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ready := now.Add(time.Minute)
	order := &models.Order{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TableNumber: "12",
		WaiterID:    "waiter-1",
		Status:      models.OrderOrdinato,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines: []models.OrderLine{
			{
				ID:          uuid.New(),
				ProductName: "Espresso",
				Quantity:    2,
				PriceCents:  120,
				Station:     models.StationBanco,
				Status:      models.ItemInserito,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			{
				ID:          uuid.New(),
				ProductName: "Tramezzino",
				Quantity:    1,
				PriceCents:  600,
				Station:     models.StationCucina,
				Status:      models.ItemPronto,
				Notes:       "no mayo",
				CreatedAt:   now,
				UpdatedAt:   now,
				ReadyAt:     &ready,
			},
		},
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	order.RecomputeTotal()
	return order
}

func TestStore_OrderRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	order := sampleOrder("roxy")

	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, err := s.LoadOrderByID(ctx, "roxy", order.ID)
	if err != nil {
		t.Fatalf("LoadOrderByID: %v", err)
	}
	if got.TotalCents != 840 {
		t.Errorf("TotalCents = %d, want 840", got.TotalCents)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(got.Lines))
	}
	second := got.Line(order.Lines[1].ID)
	if second == nil {
		t.Fatal("second line missing after round trip")
	}
	if second.Notes != "no mayo" || second.ReadyAt == nil {
		t.Error("line fields lost in round trip")
	}
	if !got.CreatedAt.Equal(order.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, order.CreatedAt)
	}
}

func TestStore_SaveOrderReplacesLines(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	order := sampleOrder("roxy")
	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	order.Lines[0].Status = models.ItemPronto
	order.Status = models.OrderPronto
	order.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SaveOrder(ctx, order); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	got, err := s.LoadOrderByID(ctx, "roxy", order.ID)
	if err != nil {
		t.Fatalf("LoadOrderByID: %v", err)
	}
	if got.Status != models.OrderPronto {
		t.Errorf("status = %s, want PRONTO", got.Status)
	}
	if got.Lines[0].Status != models.ItemPronto {
		t.Error("line status not persisted by SaveOrder")
	}
}

func TestStore_SaveOrderUnknownFails(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	err := s.SaveOrder(context.Background(), sampleOrder("roxy"))
	if !errors.Is(err, storage.ErrOrderNotFound) {
		t.Errorf("SaveOrder on unknown order = %v, want ErrOrderNotFound", err)
	}
}

func TestStore_ActiveAndIncrementalQueries(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	active := sampleOrder("roxy")
	paid := sampleOrder("roxy")
	paid.Status = models.OrderPagato
	paid.CreatedAt = paid.CreatedAt.Add(-time.Hour)
	paid.UpdatedAt = paid.UpdatedAt.Add(-time.Hour)
	other := sampleOrder("other-bar")
	for _, o := range []*models.Order{active, paid, other} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	gotActive, err := s.LoadActiveOrders(ctx, "roxy")
	if err != nil {
		t.Fatalf("LoadActiveOrders: %v", err)
	}
	if len(gotActive) != 1 || gotActive[0].ID != active.ID {
		t.Errorf("active orders = %d, want only the ORDINATO one", len(gotActive))
	}

	gotSince, err := s.LoadOrdersUpdatedSince(ctx, "roxy", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("LoadOrdersUpdatedSince: %v", err)
	}
	if len(gotSince) != 1 || gotSince[0].ID != active.ID {
		t.Errorf("incremental load = %d orders, want 1", len(gotSince))
	}
}

func TestStore_Users(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u := &models.User{
		UserRef:      models.UserRef{ID: "u1", Username: "anna", TenantID: "roxy", Role: models.RoleCameriere},
		PasswordHash: "$2a$10$hash",
		Active:       true,
		CreatedAt:    now,
	}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "roxy", "anna")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.PasswordHash != u.PasswordHash || got.Role != models.RoleCameriere {
		t.Error("user fields lost in round trip")
	}

	// Deactivation via upsert hides the account from lookups.
	u.Active = false
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "roxy", "anna"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("inactive lookup = %v, want ErrUserNotFound", err)
	}
	refs, err := s.FindUsersByTenantAndRoles(ctx, "roxy", []models.Role{models.RoleCameriere})
	if err != nil {
		t.Fatalf("FindUsersByTenantAndRoles: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("inactive user still resolvable for fan-out: %d refs", len(refs))
	}
}
