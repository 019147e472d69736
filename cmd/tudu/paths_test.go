// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tudu/tudu/internal/config"
)

func TestResolveConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	t.Run("explicit flag wins", func(t *testing.T) {
		configFile = "/etc/tudu.yaml"
		t.Cleanup(func() { configFile = "" })
		got, err := resolveConfigFile()
		require.NoError(t, err)
		assert.Equal(t, "/etc/tudu.yaml", got)
	})

	t.Run("no file", func(t *testing.T) {
		got, err := resolveConfigFile()
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("xdg file", func(t *testing.T) {
		dir := filepath.Join(base, "tudu")
		require.NoError(t, os.MkdirAll(dir, 0o700))
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers:\n  size: 2\n"), 0o600))

		got, err := resolveConfigFile()
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})
}

func TestApplySQLiteDefault(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverSQLite
	require.NoError(t, applySQLiteDefault(cfg))
	assert.Equal(t, "file:"+filepath.Join(base, "tudu", "tudu.db"), cfg.Database.URL)

	cfg.Database.URL = "file:explicit.db"
	require.NoError(t, applySQLiteDefault(cfg))
	assert.Equal(t, "file:explicit.db", cfg.Database.URL)

	pg := &config.Config{}
	pg.Database.Driver = config.DriverPostgres
	require.NoError(t, applySQLiteDefault(pg))
	assert.Empty(t, pg.Database.URL)
}
