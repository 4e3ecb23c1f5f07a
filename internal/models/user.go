// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package models

import "time"

// User is a full account record as persisted. PasswordHash is a bcrypt
// hash and never leaves the storage and auth layers.
type User struct {
	UserRef
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ref returns the lightweight reference used for event fan-out.
func (u *User) Ref() UserRef {
	return u.UserRef
}
