package importer

// rules.go defines the declarative validation model: field specifications,
// entity definitions, and the ordered rule kinds applied per field. A rule
// set is a pure function of the entity definition; nothing here touches
// the store.

import "regexp"

// FieldType is the expected scalar type for a field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

func (ft FieldType) String() string {
	switch ft {
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	default:
		return "text"
	}
}

// FieldSpec declares a single importable field of an entity.
type FieldSpec struct {
	Name       string              // Field label (matches spreadsheet header)
	Column     string              // Database column (defaults to Name)
	Type       FieldType           // Drives cell coercion and format checks
	Required   bool                // Value must be present and non-blank
	Normalizer func(string) string // Optional transformation applied before rules
}

// DBColumn returns the database column for the field.
func (f FieldSpec) DBColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// RuleKind identifies a validation strategy. The declared order is the
// per-field evaluation order: a missing value makes format and uniqueness
// checks meaningless, so required runs first and evaluation stops at the
// first failing rule for that field.
type RuleKind int

const (
	RuleRequired RuleKind = iota
	RuleFormat
	RuleUniqueInBatch
	RuleUniqueInStore
	RuleReference
	RuleCustom
)

func (k RuleKind) String() string {
	switch k {
	case RuleRequired:
		return "required"
	case RuleFormat:
		return "format"
	case RuleUniqueInBatch:
		return "unique-in-batch"
	case RuleUniqueInStore:
		return "unique-in-store"
	case RuleReference:
		return "reference"
	default:
		return "custom"
	}
}

// Code returns the RowError code for failures of this kind.
func (k RuleKind) Code() string {
	switch k {
	case RuleRequired:
		return CodeRequired
	case RuleFormat:
		return CodeFormat
	case RuleUniqueInBatch:
		return CodeUniqueBatch
	case RuleUniqueInStore:
		return CodeUniqueStore
	case RuleReference:
		return CodeReference
	default:
		return CodeCustom
	}
}

// CheckFunc is an entity-specific cross-field predicate. It returns nil
// when the row passes, or a ValidationError (RowIndex is filled in by the
// validator).
type CheckFunc func(row RawRow) *ValidationError

// ValidationRule is one declarative rule for one field.
type ValidationRule struct {
	Field    string
	Kind     RuleKind
	Message  string
	Severity Severity // Defaults to SeverityError when empty

	// Format parameters. When both are empty the rule falls back to a
	// typed-cell check against the field's declared type.
	Pattern    *regexp.Regexp
	EnumValues []string

	// Reference parameters.
	RefEntity string

	// Custom predicate.
	Check CheckFunc
}

func (r ValidationRule) severity() Severity {
	if r.Severity == "" {
		return SeverityError
	}
	return r.Severity
}

// ReferenceSpec declares a cross-entity reference field. Collection, when
// set, names the id-array column on the referenced entity that receives a
// back-reference to imported records (maintained in the same transaction).
type ReferenceSpec struct {
	Field      string // Row field label holding the reference value
	Entity     string // Referenced entity key
	Column     string // Foreign-key column on this entity's table
	Collection string // Back-reference collection column on the parent, "" for none
}

// EntityInfo carries display and storage information about an entity type.
type EntityInfo struct {
	Key   string // Unique identifier: "vehicles"
	Label string // Display name: "Vehicles"
	Table string // Database table name
}

// Definition contains everything needed to import one entity type.
type Definition struct {
	Info       EntityInfo
	Fields     []FieldSpec
	Rules      []ValidationRule
	References []ReferenceSpec

	// NaturalKey is the field whose value identifies the same real-world
	// entity across imports (plate number, national id, tax id).
	NaturalKey string

	// ActivateField names an optional boolean field carrying per-row
	// reactivation intent. Empty disables row-level intent.
	ActivateField string

	// BuildFields maps a validated row and its resolved references to the
	// column payload for the store. Reference fields must be resolved
	// through refs; the classifier attaches identity and active state.
	BuildFields func(row RawRow, refs *ReferenceMap) (map[string]any, error)
}

// activateIntent reports whether the row asks for reactivation, either
// through the batch-wide force flag or its own activate field.
func (d Definition) activateIntent(row RawRow, force bool) bool {
	if force {
		return true
	}
	if d.ActivateField == "" {
		return false
	}
	cell := row.Get(d.ActivateField)
	return cell.Kind == CellBool && cell.Bool
}

// FieldSpecFor returns the spec for a field label, if declared.
func (d Definition) FieldSpecFor(label string) (FieldSpec, bool) {
	key := normalizeLabel(label)
	for _, f := range d.Fields {
		if normalizeLabel(f.Name) == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ReferenceFor returns the reference spec for a field label, if declared.
func (d Definition) ReferenceFor(label string) (ReferenceSpec, bool) {
	key := normalizeLabel(label)
	for _, r := range d.References {
		if normalizeLabel(r.Field) == key {
			return r, true
		}
	}
	return ReferenceSpec{}, false
}

// Columns returns the expected header labels in declared order.
func (d Definition) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Name
	}
	return cols
}

// uniqueStoreFields returns the fields guarded by a unique-in-store rule.
func (d Definition) uniqueStoreFields() []FieldSpec {
	var out []FieldSpec
	for _, r := range d.Rules {
		if r.Kind != RuleUniqueInStore {
			continue
		}
		if spec, ok := d.FieldSpecFor(r.Field); ok {
			out = append(out, spec)
		}
	}
	return out
}
