// Package entities registers the importable entity definitions with the
// importer registry. Import this package for its side effects to make all
// entity types available.
package entities

import (
	"regexp"
	"strings"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

var (
	// cuitPattern matches an Argentine tax id after dash removal: 11 digits.
	cuitPattern = regexp.MustCompile(`^\d{11}$`)

	// dniPattern matches a national identity number: 7 or 8 digits.
	dniPattern = regexp.MustCompile(`^\d{7,8}$`)

	// platePattern matches both plate generations: ABC123 and AB123CD.
	platePattern = regexp.MustCompile(`^([A-Z]{3}\d{3}|[A-Z]{2}\d{3}[A-Z]{2})$`)

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// stripSeparators removes dashes, dots, and spaces from identifier values
// so "20-12345678-3" and "20123456783" compare equal.
func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// textOrNil returns the row's trimmed text for a label, or nil for NULL.
func textOrNil(row importer.RawRow, label string) any {
	raw := strings.TrimSpace(row.Get(label).Raw)
	if raw == "" {
		return nil
	}
	return raw
}

// dateOrNil returns the coerced date for a label, or nil for NULL.
func dateOrNil(row importer.RawRow, label string) any {
	cell := row.Get(label)
	if cell.Kind != importer.CellDate {
		return nil
	}
	return cell.Date
}
