package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <entity> <file.csv>",
	Short: "Import a CSV file into the database",
	Long: `Runs the full import pipeline for a CSV file: validation, reference
resolution, classification, and bulk execution. Rows that fail are
reported individually; the rest are written.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var (
	importDryRun   bool
	importActivate bool
	importReport   string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and classify without writing")
	importCmd.Flags().BoolVar(&importActivate, "activate", false, "Treat every row as requesting activation")
	importCmd.Flags().StringVar(&importReport, "report", "", "Write the full batch result to a YAML file")
}

func runImport(cmd *cobra.Command, args []string) error {
	entity, path := args[0], args[1]

	def, ok := importer.Get(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q (run 'transportectl entities' for the list)", entity)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rows, err := readRows(path, def)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cfg.Import.Timeout)
	defer cancel()

	st, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := importer.NewService(st).ImportBatch(ctx, entity, rows, importer.Options{
		DryRun:   importDryRun,
		Activate: importActivate,
		MaxRows:  cfg.Import.MaxBatchRows,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	printResult(result)

	if importReport != "" {
		if err := writeReport(importReport, result); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", importReport)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d rows failed", len(result.Errors))
	}
	return nil
}

// printResult writes a human summary of a batch result to stdout.
func printResult(result *importer.BatchResult) {
	verb := "Imported"
	if result.DryRun {
		verb = "Would import"
	}
	fmt.Printf("%s %s: %d rows (%d inserted, %d updated, %d failed)\n",
		verb, result.Entity, result.TotalRows,
		result.InsertedCount, result.UpdatedCount, len(result.Errors))

	for _, w := range result.Warnings {
		fmt.Printf("  warning row %d: %s\n", w.RowIndex, w.Message)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error   row %d: %s", e.RowIndex, e.Message)
		if s := e.Data["suggestion"]; s != "" {
			fmt.Printf(" (did you mean %q?)", s)
		}
		fmt.Println()
	}
}

// writeReport serializes the batch result as YAML.
func writeReport(path string, result *importer.BatchResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
