// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package events

import (
	"time"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// DefaultTTL bounds how long an unconsumed event stays deliverable.
const DefaultTTL = 5 * time.Minute

// AckTTL is the longer window granted to acknowledgment-required events so
// a briefly offline register or station can still drain them.
const AckTTL = 10 * time.Minute

// Policy is the publication policy for one event type: priority,
// acknowledgment requirement, default fan-out targets and TTL. Publishers
// may override targets per call (e.g. order-new targets the station roles
// actually involved in the order); priority and ack requirement are policy,
// not caller choice.
type Policy struct {
	Priority           Priority
	RequiresAck        bool
	DefaultTargetRoles []models.Role
	TTL                time.Duration
}

// policyTable is evaluated once at package init. Empty DefaultTargetRoles
// means tenant-wide broadcast unless the publisher narrows the target set.
var policyTable = map[Type]Policy{
	TypeOrderNew: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeOrderUpdate: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeOrderReady: {
		Priority:           PriorityHigh,
		RequiresAck:        true,
		DefaultTargetRoles: []models.Role{models.RoleCameriere, models.RoleSupervisore},
		TTL:                AckTTL,
	},
	TypeOrderDelivered: {
		Priority:           PriorityNormal,
		DefaultTargetRoles: []models.Role{models.RoleSupervisore, models.RoleCassa},
		TTL:                DefaultTTL,
	},
	TypePaymentRequested: {
		Priority:           PriorityHigh,
		RequiresAck:        true,
		DefaultTargetRoles: []models.Role{models.RoleCassa},
		TTL:                AckTTL,
	},
	TypeInventoryExhausted: {
		Priority: PriorityUrgent,
		TTL:      AckTTL,
	},
	TypeEntityCreated: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeEntityUpdated: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeEntityDeleted: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeBulkUpdate: {
		Priority: PriorityNormal,
		TTL:      DefaultTTL,
	},
	TypeSyncCompleted: {
		Priority: PriorityLow,
		TTL:      DefaultTTL,
	},
}

// PolicyFor returns the publication policy for an event type. Unknown
// types fall back to a NORMAL, non-acknowledged, tenant-wide policy so a
// stray publisher degrades gracefully instead of failing.
func PolicyFor(typ Type) Policy {
	if pol, ok := policyTable[typ]; ok {
		return pol
	}
	return Policy{Priority: PriorityNormal, TTL: DefaultTTL}
}

// StationRole maps a preparation station to the role that works it.
func StationRole(s models.Station) models.Role {
	if s == models.StationCucina {
		return models.RoleCucina
	}
	return models.RolePrepara
}
