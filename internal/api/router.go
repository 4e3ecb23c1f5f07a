// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package api exposes the POS HTTP surface: authentication, order
// entry, item status updates, payment flow, the event poll/ack pair
// used by reconnecting terminals, consolidated notifications and the
// websocket upgrade for the live feed.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antonio12761/roxy-bar-sub008/internal/auth"
	"github.com/antonio12761/roxy-bar-sub008/internal/authz"
	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/consolidator"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
	"github.com/antonio12761/roxy-bar-sub008/internal/sync"
	"github.com/antonio12761/roxy-bar-sub008/internal/websocket"
)

// Router holds every dependency the HTTP surface needs.
type Router struct {
	cfg          *config.Config
	auth         *auth.Service
	enforcer     *authz.Enforcer
	store        storage.Store
	orders       *sync.Service
	broadcaster  *broker.Broadcaster
	consolidator *consolidator.Consolidator
	hub          *websocket.Hub
	validate     *validator.Validate
}

// NewRouter wires the HTTP layer.
func NewRouter(
	cfg *config.Config,
	authSvc *auth.Service,
	enforcer *authz.Enforcer,
	store storage.Store,
	orders *sync.Service,
	broadcaster *broker.Broadcaster,
	cons *consolidator.Consolidator,
	hub *websocket.Hub,
) *Router {
	return &Router{
		cfg:          cfg,
		auth:         authSvc,
		enforcer:     enforcer,
		store:        store,
		orders:       orders,
		broadcaster:  broadcaster,
		consolidator: cons,
		hub:          hub,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes builds the chi handler tree.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(observeRequests)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", rt.Health)
		r.Get("/live", rt.HealthLive)
		r.Get("/ready", rt.HealthReady)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Strict limit against credential stuffing.
		r.Use(httprate.LimitByIP(10, rt.cfg.Security.RateLimitWindow))
		r.Post("/login", rt.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.Security.RateLimitReqs, rt.cfg.Security.RateLimitWindow))
		r.Use(rt.authenticate)

		r.With(rt.authorize(authz.ResourceEvents, authz.ActionRead)).
			Get("/events", rt.PollEvents)
		r.With(rt.authorize(authz.ResourceEvents, authz.ActionAck)).
			Post("/events/ack", rt.AckEvents)
		r.With(rt.authorize(authz.ResourceNotifications, authz.ActionRead)).
			Get("/notifications", rt.Notifications)

		r.With(rt.authorize(authz.ResourceOrders, authz.ActionRead)).
			Get("/orders", rt.ListOrders)
		r.With(rt.authorize(authz.ResourceOrders, authz.ActionCreate)).
			Post("/orders", rt.CreateOrder)
		r.With(rt.authorize("/orders/{orderID}/items/{itemID}", authz.ActionUpdate)).
			Patch("/orders/{orderID}/items/{itemID}", rt.UpdateItemStatus)

		r.With(rt.authorize(authz.ResourcePaymentRequest, authz.ActionCreate)).
			Post("/payments/request", rt.RequestPayment)
		r.With(rt.authorize(authz.ResourcePaymentAck, authz.ActionAck)).
			Post("/payments/ack", rt.AckPayment)

		r.With(rt.authorize(authz.ResourceSyncForce, authz.ActionCreate)).
			Post("/sync/force", rt.ForceSync)

		r.With(rt.authorize(authz.ResourceConnection, authz.ActionRead)).
			Get("/connection/health", rt.ConnectionHealth)

		r.With(rt.authorize(authz.ResourceAdminUsers, authz.ActionCreate)).
			Post("/admin/users", rt.CreateUser)
		r.With(rt.authorize(authz.ResourceAdminUsers, authz.ActionRead)).
			Get("/admin/users", rt.ListUsers)

		r.Get("/ws", rt.WebSocket)
	})

	if rt.cfg.Metrics.Enabled {
		r.Handle(rt.cfg.Metrics.Path, promhttp.Handler())
	}

	return r
}
