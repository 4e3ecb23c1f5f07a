// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"net/http"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware; the
	// upgrade itself authenticates via bearer token.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket upgrades the connection and attaches it to the live event
// feed as the authenticated staff session.
func (rt *Router) WebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "not authenticated", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := broker.Session{
		ConnectionID: uuid.NewString(),
		TenantID:     id.TenantID,
		UserID:       id.ID,
		Role:         id.Role,
	}
	websocket.NewClient(rt.hub, conn, session).Start()
}
