package store

// list.go provides the generic row listing used by the admin API.

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultListLimit caps listing page size when none is given.
const DefaultListLimit = 100

// ListRows returns up to limit records of an entity as label/value maps,
// newest first. Values are converted to JSON-friendly types.
func (s *Store) ListRows(ctx context.Context, entity string, limit, offset int) ([]map[string]any, error) {
	meta, err := metaFor(entity)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sql := fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		ident(meta.table))

	rows, err := s.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s row: %w", entity, err)
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[fd.Name] = jsonValue(values[i])
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// jsonValue flattens pgx-returned values into JSON-friendly shapes.
func jsonValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = jsonValue(item)
		}
		return items
	default:
		return v
	}
}
