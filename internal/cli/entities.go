package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List importable entity types and their columns",
	Args:  cobra.NoArgs,
	RunE:  runEntities,
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
}

func runEntities(cmd *cobra.Command, args []string) error {
	for _, def := range importer.All() {
		fmt.Printf("%s (%s)\n", def.Info.Key, def.Info.Label)
		fmt.Printf("  columns:     %s\n", strings.Join(def.Columns(), ", "))
		fmt.Printf("  natural key: %s\n", def.NaturalKey)
	}
	return nil
}
