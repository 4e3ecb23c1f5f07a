// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package main is the entry point for the Roxy Bar server.
//
// The server keeps every device in a bar or restaurant looking at the
// same order state: waiters create orders, stations (bar counter,
// kitchen) work through the lines, the register settles the bill, and
// everyone else watches the changes arrive in real time.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layering defaults, config.yaml, env vars
//  2. Storage: SQLite (or in-memory for development) for orders and users
//  3. Broker: event store, offline queues, presence, watermill bus
//  4. Sync: optimistic order updates with full and incremental refresh loops
//  5. Auth: JWT sessions, bcrypt credentials, casbin role policies
//  6. HTTP + WebSocket: chi REST API and the realtime hub
//
// Everything long-running is supervised by a suture tree; SIGINT and
// SIGTERM trigger a graceful shutdown.
//
// Minimal production configuration:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=secure-password
//	export DATABASE_PATH=/data/roxy-bar.db
//	./roxy-bar
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/antonio12761/roxy-bar-sub008/internal/api"
	"github.com/antonio12761/roxy-bar-sub008/internal/auth"
	"github.com/antonio12761/roxy-bar-sub008/internal/authz"
	"github.com/antonio12761/roxy-bar-sub008/internal/broker"
	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/consolidator"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage/memory"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage/sqlite"
	"github.com/antonio12761/roxy-bar-sub008/internal/supervisor"
	"github.com/antonio12761/roxy-bar-sub008/internal/sync"
	"github.com/antonio12761/roxy-bar-sub008/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("listen", cfg.Server.Addr()).
		Msg("Configuration loaded")

	store, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Messaging fabric: in-process watermill bus carrying one topic per
	// tenant from the broadcaster to the websocket hub.
	bus := gochannel.NewGoChannel(gochannel.Config{}, broker.NewWatermillLogger())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing message bus")
		}
	}()

	eventStore := broker.NewEventStore(broker.EventStoreConfig{
		MaxEventsPerRecipient: cfg.Broker.MaxStreamEvents,
		DefaultTTL:            cfg.Broker.EventTTL,
	})
	queue := broker.NewOfflineQueue(broker.OfflineQueueConfig{
		Capacity: cfg.Broker.QueueCapacity,
	})
	versions := broker.NewVersionTracker()
	presence := broker.NewPresence()

	broadcaster, err := broker.NewBroadcaster(eventStore, queue, versions, presence, store, bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create broadcaster")
	}

	orders := sync.NewService(store, broadcaster, sync.Config{
		FullInterval:        cfg.Sync.FullInterval,
		IncrementalInterval: cfg.Sync.IncrementalInterval,
		BatchSize:           cfg.Sync.BatchSize,
		BreakerThreshold:    uint32(cfg.Sync.BreakerThreshold),
		BreakerTimeout:      cfg.Sync.BreakerTimeout,
	})

	cons := consolidator.New(consolidator.Config{
		PriorityAge: cfg.Consolidator.PriorityAge,
		UrgentAge:   cfg.Consolidator.UrgentAge,
	})

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create JWT manager")
	}
	authSvc := auth.NewService(store, jwtManager)
	if err := authSvc.BootstrapAdmin(ctx, cfg.Security.AdminTenant, &cfg.Security); err != nil {
		logging.Fatal().Err(err).Msg("Failed to bootstrap admin account")
	}

	enforcer, err := authz.NewEnforcer(&authz.Config{CacheEnabled: true})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create authorization enforcer")
	}
	defer enforcer.Close()

	hub := websocket.NewHub(presence, broadcaster, bus)

	router := api.NewRouter(cfg, authSvc, enforcer, store, orders, broadcaster, cons, hub)
	server := api.NewServer(cfg.Server, router.Routes())

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddBrokerService(broker.NewSweeper(eventStore, queue, cfg.Broker.SweepInterval))
	tree.AddSyncService(orders)
	tree.AddSyncService(hub)
	tree.AddAPIService(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.New(), nil
	default:
		return sqlite.Open(cfg.Database.Path)
	}
}
