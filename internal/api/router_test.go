// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/antonio12761/roxy-bar-sub008/internal/auth"
	"github.com/antonio12761/roxy-bar-sub008/internal/authz"
	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/consolidator"
	"github.com/antonio12761/roxy-bar-sub008/internal/events"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage/memory"
	"github.com/antonio12761/roxy-bar-sub008/internal/sync"
	"github.com/antonio12761/roxy-bar-sub008/internal/websocket"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	srv       *httptest.Server
	store     *memory.Store
	broadcast *broker.Broadcaster
	orders    *sync.Service
	tokens    map[string]string // username -> bearer token
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second},
		Security: config.SecurityConfig{
			JWTSecret:       testSecret,
			TokenLifetime:   time.Hour,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Metrics: config.MetricsConfig{Enabled: false},
	}
	return cfg
}

// newFixture stands up the full HTTP surface over in-memory storage
// and seeds one user per role.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	store := memory.New()

	seed := func(username string, role models.Role) {
		hash, err := bcrypt.GenerateFromPassword([]byte("password-"+username), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		user := &models.User{
			UserRef: models.UserRef{
				ID:       "user-" + username,
				Username: username,
				TenantID: "roxy",
				Role:     role,
			},
			PasswordHash: string(hash),
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.UpsertUser(context.Background(), user); err != nil {
			t.Fatal(err)
		}
	}
	seed("admin", models.RoleAdmin)
	seed("super", models.RoleSupervisore)
	seed("anna", models.RoleCameriere)
	seed("banco", models.RolePrepara)
	seed("cuoco", models.RoleCucina)
	seed("cassa", models.RoleCassa)

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	presence := broker.NewPresence()
	broadcast, err := broker.NewBroadcaster(
		broker.NewEventStore(broker.DefaultEventStoreConfig()),
		broker.NewOfflineQueue(broker.DefaultOfflineQueueConfig()),
		broker.NewVersionTracker(),
		presence,
		store,
		bus,
	)
	if err != nil {
		t.Fatal(err)
	}

	orders := sync.NewService(store, broadcast, sync.DefaultConfig())
	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	authSvc := auth.NewService(store, jwt)
	enforcer, err := authz.NewEnforcer(&authz.Config{CacheEnabled: false})
	if err != nil {
		t.Fatal(err)
	}
	hub := websocket.NewHub(presence, broadcast, bus)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go func() { _ = hub.Serve(hubCtx) }()

	router := NewRouter(cfg, authSvc, enforcer, store, orders, broadcast, consolidator.New(consolidator.DefaultConfig()), hub)
	srv := httptest.NewServer(router.Routes())

	f := &fixture{
		srv:       srv,
		store:     store,
		broadcast: broadcast,
		orders:    orders,
		tokens:    make(map[string]string),
	}
	t.Cleanup(func() {
		srv.Close()
		hubCancel()
		_ = bus.Close()
	})

	for _, username := range []string{"admin", "super", "anna", "banco", "cuoco", "cassa"} {
		f.tokens[username] = f.login(t, username, "password-"+username)
	}
	return f
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"tenant_id": "roxy",
		"username":  username,
		"password":  password,
	})
	resp, err := http.Post(f.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var envelope struct {
		Data loginResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	return envelope.Data.Token
}

// do runs an authenticated request and decodes the data field into out
// when it is non-nil.
func (f *fixture) do(t *testing.T, method, path, username string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if username != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[username])
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("%s %s: decode envelope: %v", method, path, err)
		}
		if len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				t.Fatalf("%s %s: decode data: %v", method, path, err)
			}
		}
	}
	return resp
}

func espressoOrder() map[string]any {
	return map[string]any{
		"table_number": "12",
		"lines": []map[string]any{
			{"product_name": "Espresso", "quantity": 2, "price_cents": 120, "station": "BANCO"},
			{"product_name": "Tramezzino", "quantity": 1, "price_cents": 600, "station": "CUCINA"},
		},
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(map[string]string{
		"tenant_id": "roxy", "username": "anna", "password": "sbagliata",
	})
	resp, err := http.Post(f.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEndpointsRequireAuthentication(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/orders")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", resp.StatusCode)
	}
}

func TestCreateOrderFlow(t *testing.T) {
	f := newFixture(t)

	var order models.Order
	resp := f.do(t, http.MethodPost, "/api/v1/orders", "anna", espressoOrder(), &order)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if order.TotalCents != 840 {
		t.Errorf("total = %d cents, want 840", order.TotalCents)
	}
	if order.Status != models.OrderOrdinato {
		t.Errorf("status = %q, want ORDINATO", order.Status)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(order.Lines))
	}

	// The new order event reached both station streams.
	banco := f.broadcast.PendingEvents("roxy", "user-banco", nil)
	if len(banco) != 1 || banco[0].Type != events.TypeOrderNew {
		t.Errorf("banco stream = %+v, want one order-new", banco)
	}

	var listed []*models.Order
	resp = f.do(t, http.MethodGet, "/api/v1/orders", "anna", nil, &listed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if len(listed) != 1 || listed[0].ID != order.ID {
		t.Errorf("listed = %+v, want the created order", listed)
	}
}

func TestCreateOrderForbiddenForStations(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/orders", "cuoco", espressoOrder(), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for kitchen", resp.StatusCode)
	}
}

func TestUpdateItemStatusFlow(t *testing.T) {
	f := newFixture(t)

	var order models.Order
	f.do(t, http.MethodPost, "/api/v1/orders", "anna", espressoOrder(), &order)

	path := "/api/v1/orders/" + order.ID.String() + "/items/" + order.Lines[0].ID.String()
	var updated updateItemResponse
	resp := f.do(t, http.MethodPatch, path, "banco", map[string]string{"status": "IN_LAVORAZIONE"}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if updated.Phase != sync.PhaseConfirmed {
		t.Errorf("phase = %q, want CONFIRMED", updated.Phase)
	}
	if updated.Order.Lines[0].Status != models.ItemInLavorazione {
		t.Errorf("line status = %q, want IN_LAVORAZIONE", updated.Order.Lines[0].Status)
	}
	if updated.Order.Status != models.OrderInLavorazione {
		t.Errorf("order status = %q, want IN_LAVORAZIONE", updated.Order.Status)
	}

	// The register cannot work items.
	resp = f.do(t, http.MethodPatch, path, "cassa", map[string]string{"status": "PRONTO"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for register", resp.StatusCode)
	}

	// Unknown status is rejected.
	resp = f.do(t, http.MethodPatch, path, "banco", map[string]string{"status": "FINITO"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}
}

func TestPaymentFlow(t *testing.T) {
	f := newFixture(t)

	var order models.Order
	f.do(t, http.MethodPost, "/api/v1/orders", "anna", espressoOrder(), &order)

	var requested paymentRequestResponse
	resp := f.do(t, http.MethodPost, "/api/v1/payments/request", "anna",
		map[string]string{"order_id": order.ID.String()}, &requested)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request status = %d, want 200", resp.StatusCode)
	}
	if requested.Order.Status != models.OrderRichiestaConto {
		t.Errorf("order status = %q, want RICHIESTA_CONTO", requested.Order.Status)
	}
	if requested.Event.Priority != events.PriorityHigh || !requested.Event.RequiresAck {
		t.Errorf("payment event = %+v, want HIGH and ack required", requested.Event)
	}

	// The register was offline, so the event sits in its queue.
	if health := f.broadcast.QueueHealth("roxy", "user-cassa"); health.Pending != 1 {
		t.Fatalf("cassa pending = %d, want 1", health.Pending)
	}

	// The kitchen cannot settle bills.
	resp = f.do(t, http.MethodPost, "/api/v1/payments/ack", "cuoco",
		map[string]string{"order_id": order.ID.String()}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("ack by kitchen status = %d, want 403", resp.StatusCode)
	}

	var acked paymentAckResponse
	resp = f.do(t, http.MethodPost, "/api/v1/payments/ack", "cassa",
		map[string]string{"order_id": order.ID.String(), "event_id": requested.Event.ID.String()}, &acked)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status = %d, want 200", resp.StatusCode)
	}
	if !acked.EventAcked {
		t.Error("payment event should have been acknowledged")
	}
	if acked.Order.Status != models.OrderPagato {
		t.Errorf("order status = %q, want PAGATO", acked.Order.Status)
	}
	if health := f.broadcast.QueueHealth("roxy", "user-cassa"); health.Pending != 0 {
		t.Errorf("cassa pending after ack = %d, want 0", health.Pending)
	}
}

func TestPollAndAckEvents(t *testing.T) {
	f := newFixture(t)

	var order models.Order
	f.do(t, http.MethodPost, "/api/v1/orders", "anna", espressoOrder(), &order)
	f.do(t, http.MethodPost, "/api/v1/payments/request", "anna",
		map[string]string{"order_id": order.ID.String()}, nil)

	var evs []*events.Event
	resp := f.do(t, http.MethodGet, "/api/v1/events", "cassa", nil, &evs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll status = %d", resp.StatusCode)
	}
	if len(evs) == 0 {
		t.Fatal("register should see the payment event")
	}

	var found string
	for _, ev := range evs {
		if ev.Type == events.TypePaymentRequested {
			found = ev.ID.String()
		}
	}
	if found == "" {
		t.Fatal("payment-requested event missing from stream")
	}

	var ack ackResponse
	resp = f.do(t, http.MethodPost, "/api/v1/events/ack", "cassa",
		map[string]any{"event_ids": []string{found}}, &ack)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}
	if ack.Acked != 1 {
		t.Errorf("acked = %d, want 1", ack.Acked)
	}
}

func TestNotificationsFilteredByRole(t *testing.T) {
	f := newFixture(t)

	var order models.Order
	f.do(t, http.MethodPost, "/api/v1/orders", "anna", espressoOrder(), &order)

	var kitchen []consolidator.Notification
	resp := f.do(t, http.MethodGet, "/api/v1/notifications", "cuoco", nil, &kitchen)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, n := range kitchen {
		targeted := false
		for _, role := range n.TargetRoles {
			if role == models.RoleCucina {
				targeted = true
			}
		}
		if !targeted {
			t.Errorf("notification %q not targeted at kitchen: %v", n.Type, n.TargetRoles)
		}
	}

	var super []consolidator.Notification
	f.do(t, http.MethodGet, "/api/v1/notifications", "super", nil, &super)
	if len(super) < len(kitchen) {
		t.Errorf("supervisor sees %d notifications, kitchen %d; supervisor should see all", len(super), len(kitchen))
	}
}

func TestForceSyncRoles(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sync/force", "anna", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("waiter force sync status = %d, want 403", resp.StatusCode)
	}

	var result sync.Result
	resp = f.do(t, http.MethodPost, "/api/v1/sync/force", "super", nil, &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("supervisor force sync status = %d, want 200", resp.StatusCode)
	}
	if !result.FullSync {
		t.Error("forced sync should be a full pass")
	}
}

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)

	newUser := map[string]any{"username": "mario", "password": "password-mario", "role": "CAMERIERE"}

	resp := f.do(t, http.MethodPost, "/api/v1/admin/users", "super", newUser, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("supervisor create user status = %d, want 403", resp.StatusCode)
	}

	var created models.UserRef
	resp = f.do(t, http.MethodPost, "/api/v1/admin/users", "admin", newUser, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create user status = %d, want 201", resp.StatusCode)
	}
	if created.Role != models.RoleCameriere {
		t.Errorf("role = %q, want CAMERIERE", created.Role)
	}

	// The new account can log in.
	f.login(t, "mario", "password-mario")

	var users []models.UserRef
	f.do(t, http.MethodGet, "/api/v1/admin/users", "admin", nil, &users)
	if len(users) != 7 {
		t.Errorf("users = %d, want 7", len(users))
	}
}

func TestConnectionHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	var health struct {
		Connected bool               `json:"connected"`
		Queue     broker.QueueHealth `json:"queue"`
	}
	resp := f.do(t, http.MethodGet, "/api/v1/connection/health", "anna", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if health.Connected {
		t.Error("connected = true without a websocket session")
	}
	if health.Queue.Pending != 0 {
		t.Errorf("pending = %d, want 0 for a fresh session", health.Queue.Pending)
	}
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
