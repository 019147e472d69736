// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the account and session stores.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config) (*Backend, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// MigratorFactory creates the startup migrator for PostgreSQL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// AutoMigrateGetter reports whether to migrate on startup.
	// Default: parseAutoMigrate
	AutoMigrateGetter func() bool

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// Backend is an opened pair of stores.
type Backend struct {
	Accounts auth.AccountRepository
	Sessions auth.SessionRepository

	// Ping reports whether every underlying store is reachable.
	Ping func(ctx context.Context) error

	// Close releases connections. It may be nil.
	Close func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registerer() prometheus.Registerer
}

// AutoMigrator interface wraps the methods used from store.Migrator at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}
