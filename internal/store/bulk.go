package store

// bulk.go executes classified operations inside one transaction with a
// savepoint per operation. A failed operation rolls back to its savepoint
// and the rest proceed, which gives per-row failure isolation without
// giving up transactional consistency for dependent writes: the parent
// back-reference update runs under the same savepoint as its row, so it is
// applied exactly when the row is.
//
// Only failures of the transaction machinery itself (begin, savepoint,
// commit) abort the batch; then nothing is applied.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

// errStaleMatch marks an update whose filter matched no record: the
// inactive record seen at classification time was changed by a concurrent
// writer before execution.
var errStaleMatch = errors.New("matched record no longer exists in expected state")

// ExecuteBatch runs the operations as one unordered batch inside a
// transaction. Per-operation failures are reported in the BulkReport with
// the operation's originating row index; a returned error means the whole
// batch was rolled back.
func (s *Store) ExecuteBatch(ctx context.Context, entity string, ops []importer.Operation) (importer.BulkReport, error) {
	var report importer.BulkReport

	meta, err := metaFor(entity)
	if err != nil {
		return report, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return report, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, op := range ops {
		sp := fmt.Sprintf("op_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return importer.BulkReport{}, fmt.Errorf("create savepoint: %w", err)
		}

		if err := s.applyOperation(ctx, tx, meta, op); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return importer.BulkReport{}, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			report.Failures = append(report.Failures, failureFor(op, err))
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return importer.BulkReport{}, fmt.Errorf("release savepoint: %w", err)
		}

		if op.Kind == importer.OpUpdate {
			report.Updated++
		} else {
			report.Inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return importer.BulkReport{}, fmt.Errorf("commit: %w", err)
	}

	return report, nil
}

// applyOperation writes one operation and its dependent parent update.
func (s *Store) applyOperation(ctx context.Context, tx pgx.Tx, meta tableMeta, op importer.Operation) error {
	var err error
	if op.Kind == importer.OpUpdate {
		err = execUpdate(ctx, tx, meta, op)
	} else {
		err = execInsert(ctx, tx, meta, op)
	}
	if err != nil {
		return err
	}

	if op.Parent != nil {
		if err := appendToCollection(ctx, tx, op); err != nil {
			return fmt.Errorf("parent back-reference: %w", err)
		}
	}
	return nil
}

func execInsert(ctx context.Context, tx pgx.Tx, meta tableMeta, op importer.Operation) error {
	cols := []string{"id"}
	args := []any{op.ID}
	for _, col := range sortedKeys(op.Fields) {
		cols = append(cols, col)
		args = append(args, op.Fields[col])
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(meta.table))
	b.WriteString(" (")
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(col))
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(placeholders, ", "))
	b.WriteString(")")

	_, err := tx.Exec(ctx, b.String(), args...)
	return err
}

func execUpdate(ctx context.Context, tx pgx.Tx, meta tableMeta, op importer.Operation) error {
	var b strings.Builder
	var args []any

	b.WriteString("UPDATE ")
	b.WriteString(ident(meta.table))
	b.WriteString(" SET ")
	for i, col := range sortedKeys(op.Fields) {
		if i > 0 {
			b.WriteString(", ")
		}
		args = append(args, op.Fields[col])
		fmt.Fprintf(&b, "%s = $%d", ident(col), len(args))
	}

	b.WriteString(" WHERE ")
	for i, col := range sortedKeys(op.Filter) {
		if i > 0 {
			b.WriteString(" AND ")
		}
		val := op.Filter[col]
		args = append(args, val)
		// Text filter values are normalized; compare case-insensitively.
		if _, isText := val.(string); isText {
			fmt.Fprintf(&b, "lower(%s) = $%d", ident(col), len(args))
		} else {
			fmt.Fprintf(&b, "%s = $%d", ident(col), len(args))
		}
	}

	tag, err := tx.Exec(ctx, b.String(), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errStaleMatch
	}
	return nil
}

// appendToCollection adds the operation's id to the parent's collection
// column. Idempotent: an id already present is not appended again.
func appendToCollection(ctx context.Context, tx pgx.Tx, op importer.Operation) error {
	parentMeta, err := metaFor(op.Parent.Entity)
	if err != nil {
		return err
	}

	col := ident(op.Parent.Collection)
	sql := fmt.Sprintf(
		`UPDATE %s SET %s = array_append(%s, $1) WHERE id = $2 AND NOT ($1 = ANY(%s))`,
		ident(parentMeta.table), col, col, col)

	_, err = tx.Exec(ctx, sql, op.ID, op.Parent.ID)
	return err
}

// failureFor translates a store error into a per-operation failure keyed
// by the operation's originating row index.
func failureFor(op importer.Operation, err error) importer.OpFailure {
	f := importer.OpFailure{
		RowIndex: op.RowIndex,
		Code:     importer.CodeWriteFailed,
		Message:  err.Error(),
	}

	if errors.Is(err, errStaleMatch) {
		f.Code = importer.CodeStaleMatch
		f.Message = "record changed concurrently, row not applied"
		return f
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation: lost a race since validation
			f.Code = importer.CodeDuplicateKey
			f.Message = "value already exists (inserted concurrently)"
		case "23503": // foreign_key_violation
			f.Code = importer.CodeInvalidRef
			f.Message = "referenced record no longer exists"
		}
	}
	return f
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
