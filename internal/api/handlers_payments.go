// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/sync"
)

type paymentRequestBody struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

type paymentRequestResponse struct {
	Order *models.Order `json:"order"`
	Event *events.Event `json:"event"`
}

// RequestPayment marks the order as awaiting its bill and raises the
// acknowledgment-required payment event for the register.
func (rt *Router) RequestPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req paymentRequestBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "order_id must be a UUID", nil)
		return
	}
	orderID := uuid.MustParse(req.OrderID)

	order, err := rt.orders.SetOrderStatus(r.Context(), id.TenantID, orderID, models.OrderRichiestaConto)
	if err != nil {
		if errors.Is(err, sync.ErrOrderNotCached) {
			respondError(w, http.StatusNotFound, CodeNotFound, "order not found", nil)
			return
		}
		respondError(w, http.StatusConflict, CodeConflict, "could not mark order for payment", err)
		return
	}

	ev, err := rt.broadcaster.PublishPaymentRequest(r.Context(), id.TenantID, order.ID, order.TableNumber, order.TotalCents)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "order updated but payment event failed", err)
		return
	}

	respondJSON(w, http.StatusOK, paymentRequestResponse{Order: order, Event: ev})
}

type paymentAckBody struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	EventID string `json:"event_id" validate:"omitempty,uuid"`
}

type paymentAckResponse struct {
	Order      *models.Order `json:"order"`
	EventAcked bool          `json:"event_acked"`
}

// AckPayment settles the bill: the register acknowledges the payment
// event and the order moves to its terminal paid state.
func (rt *Router) AckPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req paymentAckBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "order_id must be a UUID", nil)
		return
	}
	orderID := uuid.MustParse(req.OrderID)

	acked := false
	if req.EventID != "" {
		acked = rt.broadcaster.AcknowledgeEvent(id.TenantID, id.ID, uuid.MustParse(req.EventID))
	}

	order, err := rt.orders.SetOrderStatus(r.Context(), id.TenantID, orderID, models.OrderPagato)
	if err != nil {
		if errors.Is(err, sync.ErrOrderNotCached) {
			respondError(w, http.StatusNotFound, CodeNotFound, "order not found", nil)
			return
		}
		respondError(w, http.StatusConflict, CodeConflict, "could not settle order", err)
		return
	}

	respondJSON(w, http.StatusOK, paymentAckResponse{Order: order, EventAcked: acked})
}
