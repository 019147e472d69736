// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package store connects to PostgreSQL and manages the schema the auth
// repositories run against.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectBackoff is the base delay between connection attempts. It doubles
// after every failed ping.
var ConnectBackoff = 250 * time.Millisecond

// pinger is the part of *pgxpool.Pool used to confirm the database is up.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewPool opens a pgx pool for databaseURL and pings it, retrying failed
// pings up to retries times with exponential backoff.
func NewPool(ctx context.Context, databaseURL string, retries int) (*pgxpool.Pool, error) {
	if retries < 0 {
		return nil, oops.Code("DB_CONFIG_INVALID").With("retries", retries).Errorf("connect retries must be non-negative")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, retries, ConnectBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, retries int, base time.Duration) error {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(base)) //nolint:gosec // retries validated non-negative

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
