// Package cmd implements the revdb command-line tool: small utilities
// for inspecting a revdb document store outside of the program that
// owns it.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var dbPath string

var RootCmd = &cobra.Command{
	Use:   "revdb",
	Short: "inspect a revdb document store",
	Long: fmt.Sprintf(`revdb (v%s)

Utilities for inspecting a revdb document store: dumping revision
trees, applying a test revision, and pruning history, without
involving whatever program normally owns the file.`, Version),
}

func init() {
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "revdb.bolt", "path to the store's Bolt file")
	RootCmd.AddCommand(dumpCmd)
	RootCmd.AddCommand(putCmd)
	RootCmd.AddCommand(pruneCmd)
}

// Execute runs RootCmd (its subcommands are added in init), exiting with
// status 1 on error. Called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
