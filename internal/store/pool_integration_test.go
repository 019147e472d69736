// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tudu/tudu/internal/store"
)

var _ = Describe("Schema", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tudu_test"),
			postgres.WithUsername("tudu"),
			postgres.WithPassword("tudu"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.NewPool(ctx, connStr, 3)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("rejects a second account with the same email", func() {
		_, err := pool.Exec(ctx, `INSERT INTO accounts (email, password_hash) VALUES ('a@x.com', '\x00')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `INSERT INTO accounts (email, password_hash) VALUES ('a@x.com', '\x00')`)
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
	})

	It("treats emails as case sensitive", func() {
		_, err := pool.Exec(ctx, `INSERT INTO accounts (email, password_hash) VALUES ('A@x.com', '\x00')`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("allows at most one session per account", func() {
		var id int64
		Expect(pool.QueryRow(ctx, `SELECT id FROM accounts WHERE email = 'a@x.com'`).Scan(&id)).To(Succeed())

		_, err := pool.Exec(ctx, `INSERT INTO sessions (session_id, user_id) VALUES ('s1', $1)`, id)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `INSERT INTO sessions (session_id, user_id) VALUES ('s2', $1)`, id)
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
	})

	It("removes sessions with their account", func() {
		_, err := pool.Exec(ctx, `DELETE FROM accounts WHERE email = 'a@x.com'`)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&n)).To(Succeed())
		Expect(n).To(Equal(0))
	})
})
