// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package models

import "fmt"

// Role identifies the operating role of a connected session. Roles form a
// closed set; event targeting, authorization and dashboard selection are
// all keyed by these values.
type Role string

const (
	// RoleAdmin has full access to every surface.
	RoleAdmin Role = "ADMIN"
	// RoleSupervisore oversees the floor and receives every order event.
	RoleSupervisore Role = "SUPERVISORE"
	// RoleCameriere is the waiter role: table service, order entry.
	RoleCameriere Role = "CAMERIERE"
	// RolePrepara works the bar counter preparation station.
	RolePrepara Role = "PREPARA"
	// RoleCucina works the kitchen preparation station.
	RoleCucina Role = "CUCINA"
	// RoleCassa operates the register: payments and receipts.
	RoleCassa Role = "CASSA"
)

// AllRoles returns every role in the closed set, in a stable order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleSupervisore, RoleCameriere, RolePrepara, RoleCucina, RoleCassa}
}

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisore, RoleCameriere, RolePrepara, RoleCucina, RoleCassa:
		return true
	}
	return false
}

// UserRef is a lightweight reference to a user in one tenant, as returned
// by the user directory. It is the unit the broadcast service resolves
// fan-out targets from.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}
