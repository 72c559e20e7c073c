// Package store implements the persistence layer on PostgreSQL via pgx:
// batched reference lookups, natural-key indexes, and the transactional
// bulk writer the import pipeline runs against.
package store

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tableMeta maps an entity key to its physical storage.
type tableMeta struct {
	table      string
	nameColumn string // display-name column for reference lookups, "" if none
}

// tables is the entity-to-table mapping. Collection columns referenced by
// parent links live on these tables as uuid[] columns.
var tables = map[string]tableMeta{
	"companies": {table: "companies", nameColumn: "name"},
	"personnel": {table: "personnel"},
	"vehicles":  {table: "vehicles"},
}

// Store wraps a pgx connection pool with the capabilities the import
// pipeline requires.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func metaFor(entity string) (tableMeta, error) {
	meta, ok := tables[entity]
	if !ok {
		return tableMeta{}, fmt.Errorf("no table mapping for entity %q", entity)
	}
	return meta, nil
}

// ident quotes an identifier coming from entity metadata for interpolation
// into dynamically built SQL.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
