package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/config"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/logging"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/sheet"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/store"
)

// loadConfig loads .env and the environment configuration, applying the
// --db flag override if set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()

	if dbURL := cmd.Flag("db").Value.String(); dbURL != "" {
		os.Setenv("DATABASE_URL", dbURL)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM or a timeout.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// openStore connects to the database and ensures the schema exists.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	st := store.New(pool)
	if err := st.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return st, pool, nil
}

// readRows parses the CSV file at path into raw rows for the entity.
func readRows(path string, def importer.Definition) ([]importer.RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	table, err := sheet.ReadTable(data, requiredColumns(def))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return importer.CoerceRecords(def, table.Header, table.Records), nil
}

// requiredColumns returns the labels header detection must find.
func requiredColumns(def importer.Definition) []string {
	var cols []string
	for _, f := range def.Fields {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	if len(cols) == 0 {
		cols = def.Columns()
	}
	return cols
}
