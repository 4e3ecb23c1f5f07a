// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antonio12761/roxy-bar-sub008/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated staff member attached to the request
// context.
type Identity struct {
	models.UserRef
}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// bearerToken pulls the token from the Authorization header or, for
// the websocket upgrade where custom headers are awkward, the token
// query parameter.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// authenticate validates the bearer token and stores the identity in
// the request context.
func (rt *Router) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token", nil)
			return
		}

		claims, err := rt.auth.Validate(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token", err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, Identity{UserRef: claims.Ref()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize gates the request on the role policy. object may contain
// chi URL parameter placeholders of the form {name}, resolved at
// request time.
func (rt *Router) authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, CodeUnauthorized, "not authenticated", nil)
				return
			}

			resolved := resolveObject(r, object)
			allowed, err := rt.enforcer.Allowed(id.Role, resolved, action)
			if err != nil {
				respondError(w, http.StatusInternalServerError, CodeInternal, "authorization check failed", err)
				return
			}
			if !allowed {
				respondError(w, http.StatusForbidden, CodeForbidden, "operation not permitted for role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveObject substitutes {param} placeholders with URL parameters.
func resolveObject(r *http.Request, object string) string {
	if !strings.Contains(object, "{") {
		return object
	}
	out := object
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			out = strings.ReplaceAll(out, "{"+key+"}", rctx.URLParams.Values[i])
		}
	}
	return out
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// observeRequests records per-route request counts and latency.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.ObserveAPIRequest(r.Method, endpoint, rec.status, time.Since(start))
	})
}
