package importer

// service.go orchestrates the import pipeline for one batch:
//
//	raw rows -> validate (pre) -> resolve references -> validate (post)
//	         -> classify -> execute -> aggregate
//
// Batches are bounded and processed synchronously. Per-row failures are
// surfaced as data in the BatchResult; only catastrophic failures (store
// connectivity, transaction abort) return an error, and then the batch is
// wholly unapplied.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRows is the batch size cap when Options.MaxRows is zero.
const DefaultMaxRows = 500

var (
	// ErrUnknownEntity is returned for an unregistered entity key.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrBatchTooLarge is returned when the batch exceeds the row cap.
	ErrBatchTooLarge = errors.New("batch exceeds maximum row count")
)

// Options control one import run.
type Options struct {
	// Activate forces reactivation intent for every row in the batch.
	Activate bool

	// DryRun validates, resolves, and classifies without writing; counts
	// report what would have happened.
	DryRun bool

	// ExcludeID exempts one record from unique-in-store checks, for
	// update scenarios re-importing an existing record.
	ExcludeID uuid.UUID

	// MaxRows overrides DefaultMaxRows when positive.
	MaxRows int
}

func (o Options) maxRows() int {
	if o.MaxRows > 0 {
		return o.MaxRows
	}
	return DefaultMaxRows
}

// Service runs import batches against a store.
type Service struct {
	store Store
}

// NewService creates an import service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ImportBatch runs the full pipeline for one batch of raw rows. Row
// identity is the 1-based position in rows. The returned result's error
// list preserves original row order.
func (s *Service) ImportBatch(ctx context.Context, entityKey string, rows []RawRow, opts Options) (*BatchResult, error) {
	def, ok := Get(entityKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityKey)
	}
	if len(rows) > opts.maxRows() {
		return nil, fmt.Errorf("%w: %d rows (max %d)", ErrBatchTooLarge, len(rows), opts.maxRows())
	}

	start := time.Now()
	agg := NewAggregator(def.Info.Key, len(rows))

	index, err := s.prefetchIndex(ctx, def, rows)
	if err != nil {
		return nil, fmt.Errorf("prefetch store index: %w", err)
	}

	validator := NewValidator(def, rows, index, opts.ExcludeID, opts.Activate)

	// First pass: everything that needs no reference resolution. Rows with
	// blocking errors never reach the resolver.
	type candidate struct {
		rowIndex int
		warnings []ValidationError
	}
	var candidates []candidate
	var validRows []RawRow
	for i, row := range rows {
		rowIndex := i + 1
		errs := validator.ValidatePre(row, rowIndex)
		if HasBlocking(errs) {
			agg.RejectValidation(rowIndex, errs)
			continue
		}
		candidates = append(candidates, candidate{rowIndex: rowIndex, warnings: errs})
		validRows = append(validRows, row)
	}

	refs, err := NewResolver(s.store).Build(ctx, def, validRows)
	if err != nil {
		return nil, fmt.Errorf("resolve references: %w", err)
	}

	// Second pass: reference and custom rules, then classification.
	classifier := NewClassifier(def, index, refs, opts.Activate)
	var ops []Operation
	for _, c := range candidates {
		row := rows[c.rowIndex-1]
		errs := validator.ValidatePost(row, c.rowIndex, refs)
		all := append(c.warnings, errs...)
		if HasBlocking(errs) {
			agg.RejectValidation(c.rowIndex, all)
			continue
		}
		agg.MarkReady(c.rowIndex)
		agg.Warn(all)

		op, err := classifier.Classify(row, c.rowIndex)
		if err != nil {
			agg.RejectReady(c.rowIndex, RowError{
				RowIndex: c.rowIndex,
				Message:  err.Error(),
				Code:     CodeCustom,
			})
			continue
		}
		ops = append(ops, op)
	}

	var report BulkReport
	if !opts.DryRun && len(ops) > 0 {
		report, err = s.store.ExecuteBatch(ctx, def.Info.Key, ops)
		if err != nil {
			// Catastrophic: the transaction rolled back, nothing applied.
			return nil, fmt.Errorf("execute batch: %w", err)
		}
	}
	agg.RecordExecution(ops, report)

	result := agg.Result(opts.DryRun, time.Since(start))
	slog.Info("import batch finished",
		"entity", def.Info.Key,
		"rows", result.TotalRows,
		"inserted", result.InsertedCount,
		"updated", result.UpdatedCount,
		"errors", len(result.Errors),
		"dry_run", opts.DryRun,
		"duration", result.Duration,
	)
	return result, nil
}

// prefetchIndex batch-loads the natural-key values the validator and
// classifier need: active records for every unique-in-store field, and
// inactive records for the natural key (reactivation candidates). One
// query per field and state, never per row.
func (s *Service) prefetchIndex(ctx context.Context, def Definition, rows []RawRow) (*StoreIndex, error) {
	index := &StoreIndex{
		Active:   make(map[string]map[string]uuid.UUID),
		Inactive: make(map[string]map[string]uuid.UUID),
	}

	activeFields := def.uniqueStoreFields()
	if key, ok := def.FieldSpecFor(def.NaturalKey); ok {
		found := false
		for _, f := range activeFields {
			if normalizeLabel(f.Name) == normalizeLabel(key.Name) {
				found = true
				break
			}
		}
		if !found {
			activeFields = append(activeFields, key)
		}
	}

	values := func(spec FieldSpec) []string {
		seen := make(map[string]bool)
		var out []string
		for _, row := range rows {
			raw := row.Get(spec.Name).Raw
			if raw == "" {
				continue
			}
			if spec.Normalizer != nil {
				raw = spec.Normalizer(raw)
			}
			norm := NormalizeValue(raw)
			if !seen[norm] {
				seen[norm] = true
				out = append(out, norm)
			}
		}
		return out
	}

	for _, spec := range activeFields {
		vals := values(spec)
		if len(vals) == 0 {
			continue
		}
		keys, err := s.store.KeysByValues(ctx, def.Info.Key, spec.DBColumn(), vals, true)
		if err != nil {
			return nil, fmt.Errorf("active keys for %s: %w", spec.Name, err)
		}
		index.Active[normalizeLabel(spec.Name)] = keys
	}

	if key, ok := def.FieldSpecFor(def.NaturalKey); ok {
		vals := values(key)
		if len(vals) > 0 {
			keys, err := s.store.KeysByValues(ctx, def.Info.Key, key.DBColumn(), vals, false)
			if err != nil {
				return nil, fmt.Errorf("inactive keys for %s: %w", key.Name, err)
			}
			index.Inactive[normalizeLabel(key.Name)] = keys
		}
	}

	return index, nil
}
