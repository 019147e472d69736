// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/store"
)

// SchemaMigrator interface wraps the methods used from store.Migrator.
type SchemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// migratorOpener creates a SchemaMigrator for a database URL.
type migratorOpener func(databaseURL string) (SchemaMigrator, error)

func openStoreMigrator(databaseURL string) (SchemaMigrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(openStoreMigrator)
}

func newMigrateCmd(open migratorOpener) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back and inspect the PostgreSQL schema. The SQLite
backend creates its schema when it opens and needs no migrations.

The database URL comes from --database-url, the config file or
$DATABASE_URL, in that order.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database connection string")

	run := func(fn func(cmd *cobra.Command, m SchemaMigrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			m, err := open(url)
			if err != nil {
				return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					slog.Warn("error closing migrator", "error", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(migrateUp),
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: one step)",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m SchemaMigrator, _ []string) error {
			return migrateDown(cmd, m, steps, all)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration (drops all accounts and sessions)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(migrateStatus),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  run(migrateVersion),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (dirty recovery)",
		Args:  cobra.ExactArgs(1),
		RunE:  run(migrateForce),
	})

	return cmd
}

// resolveDatabaseURL prefers the flag, then the config file and environment.
func resolveDatabaseURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	path, err := resolveConfigFile()
	if err != nil {
		return "", err
	}
	cfg, err := config.Load(path, nil, os.Getenv)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("database URL is required (--database-url, config file or $%s)", config.DatabaseURLEnv)
	}
	return cfg.Database.URL, nil
}

func migrateUp(cmd *cobra.Command, m SchemaMigrator, _ []string) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
	}
	return printVersion(cmd, m)
}

func migrateDown(cmd *cobra.Command, m SchemaMigrator, steps int, all bool) error {
	if all {
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
		}
		return printVersion(cmd, m)
	}
	if steps < 1 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
	}
	cmd.Printf("Rolling back %d migration(s)...\n", steps)
	if err := m.Steps(-steps); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").With("steps", steps).Wrap(err)
	}
	return printVersion(cmd, m)
}

func migrateStatus(cmd *cobra.Command, m SchemaMigrator, _ []string) error {
	if err := printVersion(cmd, m); err != nil {
		return err
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	cmd.Println("Applied:")
	printMigrations(cmd, applied)
	cmd.Println("Pending:")
	printMigrations(cmd, pending)
	return nil
}

func migrateVersion(cmd *cobra.Command, m SchemaMigrator, _ []string) error {
	return printVersion(cmd, m)
}

func migrateForce(cmd *cobra.Command, m SchemaMigrator, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
	}
	if err := m.Force(version); err != nil {
		return err
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

func printVersion(cmd *cobra.Command, m SchemaMigrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		cmd.Println("Schema version: none")
	case dirty:
		cmd.Printf("Schema version: %d (dirty)\n", version)
	default:
		cmd.Printf("Schema version: %d\n", version)
	}
	return nil
}

func printMigrations(cmd *cobra.Command, versions []uint) {
	if len(versions) == 0 {
		cmd.Println("  (none)")
		return
	}
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", name)
	}
}
