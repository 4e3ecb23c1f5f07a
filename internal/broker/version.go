// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import "sync"

// EntityKey builds the tracker key for an entity. Versions are tracked per
// (entityType, entityID) pair, never per event.
func EntityKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// VersionTracker assigns monotonically increasing per-entity version
// numbers used for optimistic-concurrency detection. It is the single
// writer of version counters in the process; no other component
// increments them.
//
// Counters live for the process lifetime only. A concurrent-safe map is
// not enough here: two callers racing on the same key must be serialized
// so neither ever observes the same version, which is why every access
// goes through one mutex.
type VersionTracker struct {
	mu       sync.Mutex
	versions map[string]int64
}

// NewVersionTracker creates an empty tracker.
func NewVersionTracker() *VersionTracker {
	return &VersionTracker{versions: make(map[string]int64)}
}

// NextVersion increments and returns the version for the key, starting
// at 1 for an unseen key.
func (t *VersionTracker) NextVersion(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[key]++
	return t.versions[key]
}

// CurrentVersion returns the last assigned version for the key, 0 if the
// key has never been seen.
func (t *VersionTracker) CurrentVersion(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.versions[key]
}
