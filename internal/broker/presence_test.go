// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"testing"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

func TestPresence_RegisterUnregister(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Register(Session{ConnectionID: "c1", TenantID: "roxy", UserID: "u1", Role: models.RoleCameriere})

	if !p.Connected("roxy", "u1") {
		t.Error("registered user not reported connected")
	}
	if p.Connected("roxy", "u2") {
		t.Error("unknown user reported connected")
	}

	p.Unregister("c1")
	if p.Connected("roxy", "u1") {
		t.Error("user still connected after unregister")
	}
	if p.Count() != 0 {
		t.Errorf("Count() = %d, want 0", p.Count())
	}
}

func TestPresence_MultipleConnectionsSameUser(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Register(Session{ConnectionID: "c1", TenantID: "roxy", UserID: "u1", Role: models.RoleCameriere})
	p.Register(Session{ConnectionID: "c2", TenantID: "roxy", UserID: "u1", Role: models.RoleCameriere})

	p.Unregister("c1")
	if !p.Connected("roxy", "u1") {
		t.Error("user disconnected while one socket remains")
	}
	p.Unregister("c2")
	if p.Connected("roxy", "u1") {
		t.Error("user connected with no sockets left")
	}
}

func TestPresence_TenantScoping(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Register(Session{ConnectionID: "c1", TenantID: "roxy", UserID: "u1", Role: models.RoleCassa})

	if p.Connected("other-bar", "u1") {
		t.Error("presence leaked across tenants")
	}

	sessions := p.ActiveSessions("roxy")
	if len(sessions) != 1 || sessions[0].UserID != "u1" {
		t.Errorf("ActiveSessions returned %d sessions, want the one registered", len(sessions))
	}
	if len(p.ActiveSessions("other-bar")) != 0 {
		t.Error("ActiveSessions leaked across tenants")
	}
}

func TestPresence_ReregisterReplacesSession(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Register(Session{ConnectionID: "c1", TenantID: "roxy", UserID: "u1", Role: models.RoleCameriere})
	p.Register(Session{ConnectionID: "c1", TenantID: "roxy", UserID: "u2", Role: models.RoleCassa})

	if p.Connected("roxy", "u1") {
		t.Error("replaced session still counted for the old user")
	}
	if !p.Connected("roxy", "u2") {
		t.Error("re-registered session not counted for the new user")
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
}
