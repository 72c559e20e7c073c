// Package cli implements the transportectl command line tool: bulk imports,
// validation dry runs, and entity catalog inspection against the same
// pipeline the HTTP server uses.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "transportectl",
	Short: "Bulk import tool for the fleet administration backend",
	Long: `transportectl loads spreadsheet exports (CSV) of companies, personnel,
and vehicles into the database through the import pipeline: per-row
validation, reference resolution, and partial-failure bulk writes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "PostgreSQL connection string (overrides DATABASE_URL)")
}
