// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"net/http"
	"time"
)

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Tenants  int    `json:"tenants"`
}

// Health reports overall service health including the store.
func (rt *Router) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Database: "ok", Tenants: len(rt.orders.Tenants())}

	if err := rt.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// HealthLive is the liveness probe: the process is up.
func (rt *Router) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: the store answers.
func (rt *Router) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := rt.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, CodeInternal, "store not ready", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}
