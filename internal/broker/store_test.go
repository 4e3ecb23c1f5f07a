// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/events"
)

func newTestEvent(tenantID string, typ events.Type) *events.Event {
	return events.New(tenantID, typ)
}

func TestEventStore_AppendAndUnread(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	ev1 := newTestEvent("roxy", events.TypeOrderNew)
	ev2 := newTestEvent("roxy", events.TypeOrderUpdate)

	store.Append("waiter-1", ev1)
	store.Append("waiter-1", ev2)

	got := store.GetUnread("roxy", "waiter-1", nil)
	if len(got) != 2 {
		t.Fatalf("GetUnread returned %d events, want 2", len(got))
	}
	if got[0].ID != ev1.ID || got[1].ID != ev2.ID {
		t.Error("events returned out of append order")
	}

	// The no-cursor read marks events read; a second call is empty.
	if again := store.GetUnread("roxy", "waiter-1", nil); len(again) != 0 {
		t.Errorf("second GetUnread returned %d events, want 0", len(again))
	}
}

func TestEventStore_CursorReturnsOnlyNewer(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	var all []*events.Event
	for i := 0; i < 5; i++ {
		ev := newTestEvent("roxy", events.TypeOrderUpdate)
		store.Append("waiter-1", ev)
		all = append(all, ev)
	}

	got := store.GetUnread("roxy", "waiter-1", &all[2].ID)
	if len(got) != 2 {
		t.Fatalf("cursor read returned %d events, want 2", len(got))
	}
	if got[0].ID != all[3].ID || got[1].ID != all[4].ID {
		t.Error("cursor read returned wrong events")
	}

	// Cursor reads ignore read state: they stay repeatable.
	if again := store.GetUnread("roxy", "waiter-1", &all[2].ID); len(again) != 2 {
		t.Errorf("repeated cursor read returned %d events, want 2", len(again))
	}
}

func TestEventStore_UnknownCursorReturnsWholeStream(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	for i := 0; i < 3; i++ {
		store.Append("waiter-1", newTestEvent("roxy", events.TypeOrderUpdate))
	}

	stale := uuid.New()
	got := store.GetUnread("roxy", "waiter-1", &stale)
	if len(got) != 3 {
		t.Errorf("aged-out cursor returned %d events, want full stream of 3", len(got))
	}
}

func TestEventStore_UnknownRecipientIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	if got := store.GetUnread("roxy", "nobody", nil); len(got) != 0 {
		t.Errorf("unknown recipient returned %d events, want 0", len(got))
	}
}

func TestEventStore_StreamBoundDropsOldest(t *testing.T) {
	t.Parallel()

	store := NewEventStore(EventStoreConfig{MaxEventsPerRecipient: 3, DefaultTTL: time.Hour})
	var all []*events.Event
	for i := 0; i < 5; i++ {
		ev := newTestEvent("roxy", events.TypeOrderUpdate)
		store.Append("waiter-1", ev)
		all = append(all, ev)
	}

	got := store.GetUnread("roxy", "waiter-1", nil)
	if len(got) != 3 {
		t.Fatalf("bounded stream holds %d events, want 3", len(got))
	}
	if got[0].ID != all[2].ID {
		t.Error("oldest events were not the ones dropped")
	}
}

func TestEventStore_TenantIsolation(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	store.Append("user-1", newTestEvent("roxy", events.TypeOrderNew))

	if got := store.GetUnread("other-bar", "user-1", nil); len(got) != 0 {
		t.Errorf("cross-tenant read returned %d events, want 0", len(got))
	}
}

func TestEventStore_SweepRemovesExpired(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())

	expired := newTestEvent("roxy", events.TypeOrderUpdate)
	expired.Timestamp = time.Now().UTC().Add(-time.Hour)
	expired.TTLSeconds = 60
	store.Append("waiter-1", expired)

	live := newTestEvent("roxy", events.TypeOrderUpdate)
	store.Append("waiter-1", live)

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d events, want 1", removed)
	}
	got := store.GetUnread("roxy", "waiter-1", nil)
	if len(got) != 1 || got[0].ID != live.ID {
		t.Error("expired event survived the sweep or live event was lost")
	}
}

func TestEventStore_MarkRead(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	ev1 := newTestEvent("roxy", events.TypeOrderNew)
	ev2 := newTestEvent("roxy", events.TypeOrderUpdate)
	store.Append("waiter-1", ev1)
	store.Append("waiter-1", ev2)

	store.MarkRead("roxy", "waiter-1", []uuid.UUID{ev1.ID})

	got := store.GetUnread("roxy", "waiter-1", nil)
	if len(got) != 1 || got[0].ID != ev2.ID {
		t.Error("MarkRead did not exclude the flagged event")
	}
}

func TestEventStore_DepthPerRecipient(t *testing.T) {
	t.Parallel()

	store := NewEventStore(DefaultEventStoreConfig())
	for i := 0; i < 4; i++ {
		store.Append(fmt.Sprintf("user-%d", i%2), newTestEvent("roxy", events.TypeOrderUpdate))
	}

	if got := store.StreamDepth("roxy", "user-0"); got != 2 {
		t.Errorf("StreamDepth(user-0) = %d, want 2", got)
	}
	if got := store.StreamDepth("roxy", "user-1"); got != 2 {
		t.Errorf("StreamDepth(user-1) = %d, want 2", got)
	}
}
