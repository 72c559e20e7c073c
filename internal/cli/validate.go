package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

var validateCmd = &cobra.Command{
	Use:   "validate <entity> <file.csv>",
	Short: "Validate a CSV file without writing anything",
	Long: `Runs the import pipeline in dry-run mode: every row is validated and
classified against current database state, but no writes happen. The
exit status is non-zero if any row would be rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

var validateReport string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateReport, "report", "", "Write the full batch result to a YAML file")
}

func runValidate(cmd *cobra.Command, args []string) error {
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
		DryRun:  true,
		MaxRows: cfg.Import.MaxBatchRows,
	})
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	printResult(result)

	if validateReport != "" {
		if err := writeReport(validateReport, result); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", validateReport)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d rows would be rejected", len(result.Errors))
	}
	return nil
}
