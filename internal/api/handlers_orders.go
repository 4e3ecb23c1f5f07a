// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/sync"
)

type orderLineRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	PriceCents  int64  `json:"price_cents" validate:"min=0"`
	Station     string `json:"station" validate:"required"`
	Notes       string `json:"notes"`
}

type createOrderRequest struct {
	TableNumber string             `json:"table_number" validate:"required"`
	Lines       []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ListOrders returns the tenant's active orders from the sync cache.
func (rt *Router) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	orders := rt.orders.ActiveOrders(id.TenantID)
	if len(orders) == 0 && rt.orders.LastSync(id.TenantID).IsZero() {
		if _, err := rt.orders.SyncOrders(r.Context(), id.TenantID, false); err == nil {
			orders = rt.orders.ActiveOrders(id.TenantID)
		}
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// CreateOrder persists a new table order, admits it to the sync cache
// and announces it to the stations its lines belong to.
func (rt *Router) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "table_number and at least one line are required", nil)
		return
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:          uuid.New(),
		TenantID:    id.TenantID,
		TableNumber: req.TableNumber,
		WaiterID:    id.ID,
		Status:      models.OrderOrdinato,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, line := range req.Lines {
		station := models.Station(line.Station)
		if !station.Valid() {
			respondError(w, http.StatusBadRequest, CodeInvalidParameter, "unknown station: "+line.Station, nil)
			return
		}
		order.Lines = append(order.Lines, models.OrderLine{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			PriceCents:  line.PriceCents,
			Station:     station,
			Status:      models.ItemInserito,
			Notes:       line.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	order.RecomputeTotal()

	if err := rt.store.CreateOrder(r.Context(), order); err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not save order", err)
		return
	}
	rt.orders.AdmitOrder(order)

	if _, err := rt.broadcaster.PublishNewOrder(r.Context(), order); err != nil {
		// The order is saved; clients pick it up on the next sync pass.
		respondError(w, http.StatusInternalServerError, CodeInternal, "order saved but announcement failed", err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

type updateItemRequest struct {
	Status string `json:"status" validate:"required"`
}

type updateItemResponse struct {
	Order *models.Order    `json:"order"`
	Phase sync.UpdatePhase `json:"phase"`
}

// UpdateItemStatus moves one order line through the preparation
// pipeline. The transition is optimistic: clients hear about it
// before the write commits, and a corrective event follows a failed
// commit.
func (rt *Router) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParameter, "orderID must be a UUID", nil)
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParameter, "itemID must be a UUID", nil)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "status is required", nil)
		return
	}

	_, err = rt.orders.UpdateItemStatus(r.Context(), id.TenantID, orderID, itemID, models.ItemStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, CodeInvalidStatus, "unknown item status", nil)
		case errors.Is(err, sync.ErrOrderNotCached):
			respondError(w, http.StatusNotFound, CodeNotFound, "order not found", nil)
		case errors.Is(err, sync.ErrItemNotFound):
			respondError(w, http.StatusNotFound, CodeNotFound, "order item not found", nil)
		default:
			respondError(w, http.StatusConflict, CodeConflict, "update rolled back, state restored from the store", err)
		}
		return
	}

	order, _ := rt.orders.OrderByID(id.TenantID, orderID)
	respondJSON(w, http.StatusOK, updateItemResponse{
		Order: order,
		Phase: rt.orders.Phase(id.TenantID, orderID),
	})
}

// ForceSync runs a full synchronization pass for the caller's tenant.
func (rt *Router) ForceSync(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	result, err := rt.orders.SyncOrders(r.Context(), id.TenantID, true)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, CodeSyncUnavailable, "synchronization failed, cached state kept", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
