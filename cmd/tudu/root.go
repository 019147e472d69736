// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the tudu CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tudu",
		Short: "tudu - account registration, login and sessions over HTTP",
		Long: `tudu registers accounts, verifies passwords and issues one
server-side session per account, serving JSON over HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
