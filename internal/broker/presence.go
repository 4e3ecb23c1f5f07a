// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"sync"
	"time"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// Session is one active connection: one user operating one role in one
// tenant. The recipient identity the event store keys streams by is the
// session's user ID.
type Session struct {
	ConnectionID string      `json:"connection_id"`
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	Role         models.Role `json:"role"`
	ConnectedAt  time.Time   `json:"connected_at"`
}

// Presence tracks which recipients currently hold a live connection. The
// broadcast service consults it to decide between live push and offline
// queueing, and the transport registers/unregisters sessions as sockets
// come and go.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]Session // keyed by connection ID
	byUser   map[string]int     // live connection count per tenant/user key
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		sessions: make(map[string]Session),
		byUser:   make(map[string]int),
	}
}

func userKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// Register records a live session. Re-registering the same connection ID
// replaces the previous record.
func (p *Presence) Register(s Session) {
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.sessions[s.ConnectionID]; ok {
		p.byUser[userKey(prev.TenantID, prev.UserID)]--
	}
	p.sessions[s.ConnectionID] = s
	p.byUser[userKey(s.TenantID, s.UserID)]++
}

// Unregister removes a session. Unknown connection IDs are ignored.
func (p *Presence) Unregister(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[connectionID]
	if !ok {
		return
	}
	delete(p.sessions, connectionID)

	key := userKey(s.TenantID, s.UserID)
	p.byUser[key]--
	if p.byUser[key] <= 0 {
		delete(p.byUser, key)
	}
}

// Connected reports whether the user holds at least one live connection
// in the tenant.
func (p *Presence) Connected(tenantID, userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byUser[userKey(tenantID, userID)] > 0
}

// ActiveSessions returns every live session for a tenant.
func (p *Presence) ActiveSessions(tenantID string) []Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Session
	for _, s := range p.sessions {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of live sessions across all tenants.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
