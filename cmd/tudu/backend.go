// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/tudu/tudu/internal/auth/postgres"
	"github.com/tudu/tudu/internal/auth/redis"
	"github.com/tudu/tudu/internal/auth/sqlite"
	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/store"
)

// openBackend connects the account store named by the database driver and
// the session store named by the session backend.
func openBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	var (
		b       Backend
		closers []func()
		pingers []func(context.Context) error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := store.NewPool(ctx, cfg.Database.URL, cfg.Database.ConnectRetries)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		pingers = append(pingers, pool.Ping)
		b.Accounts = postgres.NewAccountRepository(pool)
		b.Sessions = postgres.NewSessionRepository(pool)

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				slog.Warn("error closing sqlite database", "error", err)
			}
		})
		pingers = append(pingers, db.PingContext)
		b.Accounts = sqlite.NewAccountRepository(db)
		b.Sessions = sqlite.NewSessionRepository(db)

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Database.Driver).
			Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Session.Backend == config.SessionBackendRedis {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				slog.Warn("error closing redis client", "error", err)
			}
		})
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		pingers = append(pingers, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		b.Sessions = redis.NewSessionRepository(client, cfg.Redis.Prefix)
	}

	b.Ping = func(ctx context.Context) error {
		var errs []error
		for _, ping := range pingers {
			errs = append(errs, ping(ctx))
		}
		return errors.Join(errs...)
	}
	b.Close = closeAll
	return &b, nil
}
