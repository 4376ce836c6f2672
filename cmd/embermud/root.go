// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the EmberMUD CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embermud",
		Short: "EmberMUD - a persistent multiplayer text game server",
		Long: `EmberMUD is a persistent multiplayer text game server. This binary
runs the identity/session core with a telnet front end, backed by a flat
save file, PostgreSQL, or both.`,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
