package importer

// cells.go coerces cleaned spreadsheet strings into the closed CellValue
// variant at the pipeline boundary.
//
// Coercion is driven by the entity definition's declared field types and is
// deliberately forgiving about the messy reality of exported spreadsheets:
//   - Multiple date formats (US, EU, ISO) with 2-digit year pivoting
//   - Currency symbols and thousands separators in numbers
//   - Various boolean spellings (yes/no, true/false, si/no, 1/0)
//
// A value that fails coercion stays a CellText carrying the raw string; the
// format validation rule reports it. Coercion never produces an error.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericPattern validates a numeric string after cleanup. Matches
// integers, decimals, and scientific notation.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Parsed years
// more than this many years in the future fall back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// CoerceCell turns a cleaned cell string into a CellValue for the given
// field type. Empty input always yields CellEmpty.
func CoerceCell(raw string, ft FieldType) CellValue {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CellValue{}
	}

	switch ft {
	case FieldNumeric:
		if n, ok := parseNumber(raw); ok {
			return CellValue{Kind: CellNumber, Raw: raw, Number: n}
		}
	case FieldDate:
		if t, ok := parseDate(raw); ok {
			return CellValue{Kind: CellDate, Raw: raw, Date: t}
		}
	case FieldBool:
		if b, ok := parseBool(raw); ok {
			return CellValue{Kind: CellBool, Raw: raw, Bool: b}
		}
	}

	return CellValue{Kind: CellText, Raw: raw}
}

// parseDate tries 4-digit year layouts first (unambiguous), then 2-digit
// layouts with pivot-year adjustment.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() > pivotYear {
			t = t.AddDate(-100, 0, 0)
		}
		return t, true
	}

	return time.Time{}, false
}

// parseNumber handles currency symbols, thousands separators, and
// accounting format (parentheses for negative).
func parseNumber(s string) (float64, bool) {
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericPattern.MatchString(s) {
		return 0, false
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseBool accepts the boolean spellings seen in real exports, including
// the Spanish si/no used by the fleet spreadsheets.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "si", "sí", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

// CoerceRecords builds RawRows from parsed spreadsheet records using the
// definition's field types. header maps lower-cased labels to positions.
// Columns not declared by the definition are kept as text cells so custom
// rules can still see them.
func CoerceRecords(def Definition, header map[string]int, records [][]string) []RawRow {
	types := make(map[string]FieldType, len(def.Fields))
	for _, f := range def.Fields {
		types[normalizeLabel(f.Name)] = f.Type
	}

	maxPos := -1
	for _, pos := range header {
		if pos > maxPos {
			maxPos = pos
		}
	}
	labels := make([]string, maxPos+1)
	for label, pos := range header {
		if pos >= 0 {
			labels[pos] = label
		}
	}

	rows := make([]RawRow, 0, len(records))
	for _, rec := range records {
		cells := make([]Cell, 0, len(labels))
		for pos, label := range labels {
			if label == "" {
				continue
			}
			raw := ""
			if pos < len(rec) {
				raw = rec[pos]
			}
			cells = append(cells, Cell{
				Label: label,
				Value: CoerceCell(raw, types[label]),
			})
		}
		rows = append(rows, NewRawRow(cells))
	}
	return rows
}

// normalizeLabel lower-cases and trims a field label for lookup.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeValue canonicalizes a cell value for uniqueness and reference
// comparison: trimmed and lower-cased.
func NormalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
