// Package sheet parses uploaded spreadsheet exports (CSV) into raw records
// for the import pipeline. It owns the messy parts of real exports: stray
// bytes, Excel formula prefixes, header rows buried under preamble lines.
package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the maximum allowed CSV file size (10MB). Import batches
// are bounded, so anything larger is a wrong file, not a big batch.
var MaxFileSize int64 = 10 * 1024 * 1024

// MaxHeaderSearchRows is the maximum number of rows scanned for the header.
var MaxHeaderSearchRows = 20

// HeaderIndex maps column labels (lowercase) to their position in a record.
type HeaderIndex map[string]int

// Table is a parsed spreadsheet: the detected header and the data records
// following it, with empty rows dropped. Row identity for the pipeline is
// the 1-based position within Records.
type Table struct {
	Header  HeaderIndex
	Records [][]string
}

// ReadTable parses CSV data and locates the header row containing the
// expected column labels. Cells are cleaned of common CSV artifacts.
func ReadTable(data []byte, expected []string) (*Table, error) {
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("file exceeds %dMB limit", MaxFileSize/(1024*1024))
	}

	data = sanitizeUTF8(data)
	records, err := parseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headerAt := findHeader(records, expected)
	if headerAt < 0 {
		return nil, fmt.Errorf("header not found (expected columns: %s)", strings.Join(expected, ", "))
	}

	header := MakeHeaderIndex(records[headerAt])

	var rows [][]string
	for _, rec := range records[headerAt+1:] {
		if isEmptyRow(rec) {
			continue
		}
		cleaned := make([]string, len(rec))
		for i, cell := range rec {
			cleaned[i] = CleanCell(cell)
		}
		rows = append(rows, cleaned)
	}

	return &Table{Header: header, Records: rows}, nil
}

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// findHeader scans the first rows for one matching the expected labels.
func findHeader(records [][]string, expected []string) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if matchesHeader(records[i], expected) {
			return i
		}
	}
	return -1
}

// matchesHeader reports whether a row contains every expected label,
// case-insensitively and in any order. Extra columns are allowed.
func matchesHeader(row []string, expected []string) bool {
	idx := MakeHeaderIndex(row)
	for _, col := range expected {
		if _, ok := idx[strings.ToLower(CleanCell(col))]; !ok {
			return false
		}
	}
	return len(expected) > 0
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
