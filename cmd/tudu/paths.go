// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"github.com/tudu/tudu/internal/config"
	"github.com/tudu/tudu/internal/xdg"
)

// resolveConfigFile returns --config, or the XDG config file when one exists.
func resolveConfigFile() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.FindConfigFile()
}

// applySQLiteDefault points an unset SQLite URL at the XDG data directory.
func applySQLiteDefault(cfg *config.Config) error {
	if cfg.Database.Driver != config.DriverSQLite || cfg.Database.URL != "" {
		return nil
	}
	path, err := xdg.DatabaseFile()
	if err != nil {
		return err
	}
	cfg.Database.URL = "file:" + path
	return nil
}
