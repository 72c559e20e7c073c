// Package importer implements the bulk entity import pipeline: row
// validation, cross-entity reference resolution, insert/update
// classification, and transactional bulk execution with per-row error
// isolation. This package has no HTTP or file-format dependencies and can
// be driven by any frontend.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CellKind identifies the scalar kind carried by a cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellBool
	CellDate
)

// CellValue is a closed variant over the scalar kinds a spreadsheet cell
// can hold. Raw is always the original (cleaned) text, kept for error
// reporting regardless of the coerced kind.
type CellValue struct {
	Kind   CellKind
	Raw    string
	Number float64
	Bool   bool
	Date   time.Time
}

// IsEmpty reports whether the cell holds no value.
func (v CellValue) IsEmpty() bool { return v.Kind == CellEmpty }

// Cell pairs a field label with its value.
type Cell struct {
	Label string
	Value CellValue
}

// RawRow is an ordered mapping from field label to cell value. Identity is
// the row's 1-based position in the batch, tracked by the pipeline, not the
// row itself. Immutable once built.
type RawRow struct {
	cells []Cell
	index map[string]int
}

// NewRawRow builds a row from ordered cells. Lookup by label is
// case-insensitive; later duplicates of a label are ignored.
func NewRawRow(cells []Cell) RawRow {
	idx := make(map[string]int, len(cells))
	for i, c := range cells {
		key := normalizeLabel(c.Label)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return RawRow{cells: cells, index: idx}
}

// Get returns the value for a field label, or an empty cell if the label
// is not present.
func (r RawRow) Get(label string) CellValue {
	if i, ok := r.index[normalizeLabel(label)]; ok {
		return r.cells[i].Value
	}
	return CellValue{}
}

// Has reports whether the row carries the field label at all.
func (r RawRow) Has(label string) bool {
	_, ok := r.index[normalizeLabel(label)]
	return ok
}

// Labels returns the field labels in row order.
func (r RawRow) Labels() []string {
	labels := make([]string, len(r.cells))
	for i, c := range r.cells {
		labels[i] = c.Label
	}
	return labels
}

// Severity distinguishes blocking errors from advisory warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError is a single rule failure for one field of one row.
type ValidationError struct {
	RowIndex   int      `json:"rowIndex"`
	Field      string   `json:"field"`
	Value      string   `json:"value,omitempty"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion,omitempty"`
	Code       string   `json:"code,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, %s: %s", e.RowIndex, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Message)
}

// RowError is the flat, row-indexed error shape reported to callers. It
// covers both validation-phase and execution-phase failures.
type RowError struct {
	RowIndex int               `json:"rowIndex"`
	Message  string            `json:"message"`
	Code     string            `json:"code,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Error codes carried by RowError.Code.
const (
	CodeRequired     = "required"
	CodeFormat       = "format"
	CodeUniqueBatch  = "unique_in_batch"
	CodeUniqueStore  = "unique_in_store"
	CodeReference    = "reference"
	CodeCustom       = "custom"
	CodeDuplicateKey = "duplicate_key"
	CodeInvalidRef   = "invalid_reference"
	CodeStaleMatch   = "stale_match"
	CodeWriteFailed  = "write_failed"
)

// OpKind tags a classified operation.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
)

func (k OpKind) String() string {
	if k == OpUpdate {
		return "update"
	}
	return "insert"
}

// ParentLink describes a dependent write: append the operation's entity id
// to a collection column on a parent record, inside the same transaction.
type ParentLink struct {
	Entity     string
	ID         uuid.UUID
	Collection string
}

// Operation is a classified store operation. RowIndex is carried purely for
// error correlation and is never sent to the store itself.
type Operation struct {
	RowIndex int
	Kind     OpKind
	ID       uuid.UUID
	Fields   map[string]any
	Filter   map[string]any
	Parent   *ParentLink
}

// OpFailure is a per-operation execution failure.
type OpFailure struct {
	RowIndex int
	Code     string
	Message  string
}

// BulkReport summarizes an executed batch of operations.
type BulkReport struct {
	Inserted int
	Updated  int
	Failures []OpFailure
}

// BatchResult is the caller-facing outcome of an import.
type BatchResult struct {
	Entity        string     `json:"entity"`
	TotalRows     int        `json:"totalRows"`
	InsertedCount int        `json:"insertedCount"`
	UpdatedCount  int        `json:"updatedCount"`
	Errors        []RowError `json:"errors"`
	Warnings      []RowError `json:"warnings,omitempty"`
	DryRun        bool       `json:"dryRun,omitempty"`
	Duration      string     `json:"duration,omitempty"`
}

// Ref is a canonical id plus display name, as returned by store lookups.
type Ref struct {
	ID   uuid.UUID
	Name string
}

// Lookup is the store query capability the engine requires. All methods
// are batched; the engine never issues per-row lookups.
type Lookup interface {
	// RefsByIDs returns refs of the entity whose ids are in the set.
	RefsByIDs(ctx context.Context, entity string, ids []uuid.UUID) ([]Ref, error)

	// RefsByNames returns refs whose lower-cased name is in the set.
	// Names passed in must already be normalized (lower-cased, trimmed).
	RefsByNames(ctx context.Context, entity string, names []string) ([]Ref, error)

	// RefNames lists known display names of the entity, for closest-match
	// suggestions on unresolved references.
	RefNames(ctx context.Context, entity string, limit int) ([]string, error)

	// KeysByValues maps normalized column values to canonical ids for
	// records matching the given active state.
	KeysByValues(ctx context.Context, entity, column string, values []string, active bool) (map[string]uuid.UUID, error)
}

// BulkWriter executes classified operations as one unordered batch inside a
// transaction. Per-operation failures are reported in the BulkReport; only
// catastrophic failures (connectivity, transaction abort) are returned as an
// error, in which case the batch is wholly unapplied.
type BulkWriter interface {
	ExecuteBatch(ctx context.Context, entity string, ops []Operation) (BulkReport, error)
}

// Store combines the capabilities the pipeline needs from persistence.
type Store interface {
	Lookup
	BulkWriter
}
