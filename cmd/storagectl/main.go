/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command storagectl stores blobs, reads and deletes table entities and sends queue
// messages through the cloudstore managers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &app{}

	rootCmd := &cobra.Command{
		Use:               "storagectl",
		Short:             "cloudstore CLI tool",
		Long:              `storagectl is a command-line tool for blobs, table entities and queue messages.`,
		SilenceUsage:      true,
		PersistentPreRunE: app.setup,
		PersistentPostRun: app.teardown,
	}
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(blobCmd(app))
	rootCmd.AddCommand(tableCmd(app))
	rootCmd.AddCommand(queueCmd(app))
	rootCmd.AddCommand(versionCmd(app))

	return rootCmd
}
