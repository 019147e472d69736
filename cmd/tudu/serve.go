// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/httpapi"
	"github.com/tudu/tudu/internal/logging"
	"github.com/tudu/tudu/internal/observability"
	"github.com/tudu/tudu/internal/store"
	"github.com/tudu/tudu/internal/workpool"
)

const (
	serviceName = "tudu"

	// autoMigrateEnv disables startup migrations when set to a false value.
	autoMigrateEnv = "TUDU_DB_AUTO_MIGRATE"

	shutdownTimeout   = 5 * time.Second
	readinessTimeout  = time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP auth server",
		Long: `Start the HTTP server exposing account registration, login,
logout and session lookup. Auth work runs on a bounded worker pool.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigFile()
			if err != nil {
				return fmt.Errorf("failed to locate configuration: %w", err)
			}
			cfg, err := config.Load(path, cmd.Flags(), os.Getenv)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := applySQLiteDefault(cfg); err != nil {
				return fmt.Errorf("failed to prepare data directory: %w", err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the server until a signal, a server error or ctx
// cancellation. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.AutoMigrateGetter == nil {
		deps.AutoMigrateGetter = parseAutoMigrate
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	logger.Info("starting tudu",
		"http_addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"session_backend", cfg.Session.Backend,
		"workers", cfg.Workers.Size,
	)

	if cfg.Database.Driver == config.DriverPostgres && deps.AutoMigrateGetter() {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return fmt.Errorf("failed to run database migration: %w", err)
		}
	}

	backend, err := deps.BackendFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if backend.Close != nil {
		defer backend.Close()
	}

	logger.Info("connected to database")

	hasher, err := auth.NewHasher(cfg.Hasher.Algorithm, cfg.Hasher.Cost)
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ready once the API listener is bound; unready again during shutdown.
	var ready atomic.Bool

	var (
		obsServer  ObservabilityServer
		registerer prometheus.Registerer
		metrics    *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
			if !ready.Load() {
				return false
			}
			pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer pingCancel()
			return backend.Ping == nil || backend.Ping(pingCtx) == nil
		})
		registerer = obsServer.Registerer()
		metrics = obsServer.Metrics()
	}

	pool, err := workpool.New(workpool.Options{
		Size:       cfg.Workers.Size,
		Queue:      cfg.Workers.Queue,
		Registerer: registerer,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Close()

	svc, err := auth.NewService(backend.Accounts, backend.Sessions, hasher,
		append(policyOptions(cfg), auth.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	apiOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if metrics != nil {
		apiOpts = append(apiOpts, httpapi.WithMetrics(metrics))
	}
	handler, err := httpapi.New(svc, pool, apiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP handler: %w", err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := httpServer.Shutdown(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop HTTP server during cleanup", "error", stopErr)
			}
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("tudu server started")
	logger.Info("tudu ready", "http_addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		serveErr = fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// In-flight requests finish before the deferred pool and store closes.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

// policyOptions builds the registration policies selected by cfg.
func policyOptions(cfg *config.Config) []auth.Option {
	var opts []auth.Option
	if cfg.Password.MinLength > 0 {
		opts = append(opts, auth.WithPasswordPolicy(auth.LengthPolicy{Min: cfg.Password.MinLength}))
	}
	if cfg.Email.Validate {
		opts = append(opts, auth.WithEmailPolicy(auth.AddressPolicy{}))
	}
	return opts
}

// parseAutoMigrate reads autoMigrateEnv. Unset or unrecognized values mean true.
func parseAutoMigrate() bool {
	raw := os.Getenv(autoMigrateEnv)
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		slog.Warn("unrecognized auto-migrate value, migrating anyway",
			"env", autoMigrateEnv,
			"value", raw,
		)
		return true
	}
	return enabled
}

// runAutoMigration applies pending migrations before the stores open.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	slog.Info("database schema up to date")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
