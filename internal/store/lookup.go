package store

// lookup.go implements the batched query capabilities the import pipeline
// requires: reference resolution by id-set or name-set, and natural-key
// indexes. Every method issues a single query for its whole value set.

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

// RefsByIDs returns canonical id/name pairs for the entity records whose
// ids are in the set.
func (s *Store) RefsByIDs(ctx context.Context, entity string, ids []uuid.UUID) ([]importer.Ref, error) {
	meta, err := metaFor(entity)
	if err != nil {
		return nil, err
	}

	nameExpr := "''"
	if meta.nameColumn != "" {
		nameExpr = ident(meta.nameColumn)
	}
	sql := fmt.Sprintf(`SELECT id, %s FROM %s WHERE id = ANY($1)`, nameExpr, ident(meta.table))

	rows, err := s.pool.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("refs by ids for %s: %w", entity, err)
	}
	defer rows.Close()

	var refs []importer.Ref
	for rows.Next() {
		var id uuid.UUID
		var name pgtype.Text
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		refs = append(refs, importer.Ref{ID: id, Name: name.String})
	}
	return refs, rows.Err()
}

// RefsByNames returns canonical id/name pairs for records whose lower-cased
// display name is in the set. Names passed in must already be normalized.
// A name shared by several records yields several refs; the resolver treats
// that as ambiguous.
func (s *Store) RefsByNames(ctx context.Context, entity string, names []string) ([]importer.Ref, error) {
	meta, err := metaFor(entity)
	if err != nil {
		return nil, err
	}
	if meta.nameColumn == "" {
		return nil, fmt.Errorf("entity %q has no display-name column", entity)
	}

	col := ident(meta.nameColumn)
	sql := fmt.Sprintf(`SELECT id, lower(%s) FROM %s WHERE lower(%s) = ANY($1)`,
		col, ident(meta.table), col)

	rows, err := s.pool.Query(ctx, sql, names)
	if err != nil {
		return nil, fmt.Errorf("refs by names for %s: %w", entity, err)
	}
	defer rows.Close()

	var refs []importer.Ref
	for rows.Next() {
		var ref importer.Ref
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// RefNames lists known display names of the entity, for closest-match
// suggestions on unresolved references.
func (s *Store) RefNames(ctx context.Context, entity string, limit int) ([]string, error) {
	meta, err := metaFor(entity)
	if err != nil {
		return nil, err
	}
	if meta.nameColumn == "" {
		return nil, nil
	}

	col := ident(meta.nameColumn)
	sql := fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY %s LIMIT $1`,
		col, ident(meta.table), col)

	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("ref names for %s: %w", entity, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// KeysByValues maps normalized column values to canonical ids for records
// in the given active state.
func (s *Store) KeysByValues(ctx context.Context, entity, column string, values []string, active bool) (map[string]uuid.UUID, error) {
	meta, err := metaFor(entity)
	if err != nil {
		return nil, err
	}

	col := ident(column)
	sql := fmt.Sprintf(`SELECT lower(%s), id FROM %s WHERE lower(%s) = ANY($1) AND active = $2`,
		col, ident(meta.table), col)

	rows, err := s.pool.Query(ctx, sql, values, active)
	if err != nil {
		return nil, fmt.Errorf("keys by values for %s.%s: %w", entity, column, err)
	}
	defer rows.Close()

	keys := make(map[string]uuid.UUID)
	for rows.Next() {
		var value string
		var id uuid.UUID
		if err := rows.Scan(&value, &id); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[value] = id
	}
	return keys, rows.Err()
}
