package store

import (
	"context"
	"fmt"
)

// schemaStatements bootstrap the three entity tables. Partial unique
// indexes guard natural keys among active records only: inactive records
// with the same key are reactivation candidates, not conflicts, and the
// database backs the validation-time uniqueness check against races.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id            uuid PRIMARY KEY,
		name          text NOT NULL,
		tax_id        text NOT NULL,
		email         text,
		phone         text,
		city          text,
		active        boolean NOT NULL DEFAULT false,
		personnel_ids uuid[] NOT NULL DEFAULT '{}',
		vehicle_ids   uuid[] NOT NULL DEFAULT '{}',
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS companies_tax_id_active_key
		ON companies (lower(tax_id)) WHERE active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_active_key
		ON companies (lower(name)) WHERE active`,

	`CREATE TABLE IF NOT EXISTS personnel (
		id             uuid PRIMARY KEY,
		first_name     text NOT NULL,
		last_name      text NOT NULL,
		national_id    text NOT NULL,
		type           text,
		license_number text,
		license_expiry date,
		company_id     uuid REFERENCES companies(id),
		active         boolean NOT NULL DEFAULT false,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS personnel_national_id_active_key
		ON personnel (lower(national_id)) WHERE active`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		id               uuid PRIMARY KEY,
		plate            text NOT NULL,
		brand            text NOT NULL,
		model            text NOT NULL,
		year             integer,
		insurance_expiry date,
		company_id       uuid REFERENCES companies(id),
		active           boolean NOT NULL DEFAULT false,
		created_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS vehicles_plate_active_key
		ON vehicles (lower(plate)) WHERE active`,
}

// InitSchema creates the entity tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
