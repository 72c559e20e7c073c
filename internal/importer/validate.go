package importer

// validate.go applies an entity's rule set to each row of a batch.
//
// Rules run per field in a fixed order (required, format, unique-in-batch,
// unique-in-store, reference, custom), stopping at the first blocking
// failure for that field while continuing with other fields and rows.
// Reference and custom rules run in a second pass, after the reference map
// has been built from the rows that survived the first pass.
//
// The validator is pure given its inputs: the batch, the prefetched store
// snapshot, and the reference map. It performs no I/O.

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StoreIndex is a prefetched snapshot of natural-key values already in the
// store, split by active state. Keys are field labels, then normalized
// values. Built once per batch from batched queries, read-only afterward.
type StoreIndex struct {
	Active   map[string]map[string]uuid.UUID
	Inactive map[string]map[string]uuid.UUID
}

// ActiveID returns the canonical id of an active record holding the value.
func (ix *StoreIndex) ActiveID(field, value string) (uuid.UUID, bool) {
	if ix == nil {
		return uuid.Nil, false
	}
	id, ok := ix.Active[normalizeLabel(field)][NormalizeValue(value)]
	return id, ok
}

// InactiveID returns the canonical id of an inactive record holding the value.
func (ix *StoreIndex) InactiveID(field, value string) (uuid.UUID, bool) {
	if ix == nil {
		return uuid.Nil, false
	}
	id, ok := ix.Inactive[normalizeLabel(field)][NormalizeValue(value)]
	return id, ok
}

// Validator validates the rows of one batch against an entity's rule set.
type Validator struct {
	def   Definition
	batch []RawRow
	index *StoreIndex

	// excludeID is the "exclude this id" allowance for update scenarios:
	// unique-in-store ignores a match on exactly this record.
	excludeID uuid.UUID

	// forceActivate is the batch-wide reactivation intent. Intent decides
	// whether an inactive natural-key match is a reactivation candidate or
	// a duplicate.
	forceActivate bool

	// batchValues caches normalized value -> row indexes per field, for
	// fields guarded by a unique-in-batch rule.
	batchValues map[string]map[string][]int

	// preRules and postRules are per-field rule lists in evaluation order.
	preRules  map[string][]ValidationRule
	postRules map[string][]ValidationRule

	// fieldOrder preserves the declared field order for stable error output.
	fieldOrder []string
}

// NewValidator prepares a validator for a batch. The batch is needed up
// front for unique-in-batch duplicate detection.
func NewValidator(def Definition, batch []RawRow, index *StoreIndex, excludeID uuid.UUID, forceActivate bool) *Validator {
	v := &Validator{
		def:           def,
		batch:         batch,
		index:         index,
		excludeID:     excludeID,
		forceActivate: forceActivate,
		preRules:      make(map[string][]ValidationRule),
		postRules:     make(map[string][]ValidationRule),
	}

	seen := make(map[string]bool)
	addField := func(label string) {
		key := normalizeLabel(label)
		if !seen[key] {
			seen[key] = true
			v.fieldOrder = append(v.fieldOrder, key)
		}
	}
	for _, f := range def.Fields {
		addField(f.Name)
	}

	// Group rules per field, keeping kind order within each field.
	for kind := RuleRequired; kind <= RuleCustom; kind++ {
		for _, rule := range def.Rules {
			if rule.Kind != kind {
				continue
			}
			key := normalizeLabel(rule.Field)
			addField(rule.Field)
			if kind >= RuleReference {
				v.postRules[key] = append(v.postRules[key], rule)
			} else {
				v.preRules[key] = append(v.preRules[key], rule)
			}
		}
	}

	v.indexBatchValues()
	return v
}

// indexBatchValues builds the per-field duplicate index for the batch.
func (v *Validator) indexBatchValues() {
	v.batchValues = make(map[string]map[string][]int)
	for _, rule := range v.def.Rules {
		if rule.Kind != RuleUniqueInBatch {
			continue
		}
		key := normalizeLabel(rule.Field)
		if _, ok := v.batchValues[key]; ok {
			continue
		}
		values := make(map[string][]int)
		for i, row := range v.batch {
			val := NormalizeValue(v.fieldValue(row, rule.Field))
			if val == "" {
				continue
			}
			values[val] = append(values[val], i+1)
		}
		v.batchValues[key] = values
	}
}

// fieldValue returns the row's raw value for a field with the field's
// normalizer applied.
func (v *Validator) fieldValue(row RawRow, field string) string {
	raw := row.Get(field).Raw
	if spec, ok := v.def.FieldSpecFor(field); ok && spec.Normalizer != nil && raw != "" {
		raw = spec.Normalizer(raw)
	}
	return raw
}

// ValidatePre runs the required, format, and uniqueness rules for one row.
// rowIndex is the 1-based batch position.
func (v *Validator) ValidatePre(row RawRow, rowIndex int) []ValidationError {
	var errs []ValidationError
	for _, field := range v.fieldOrder {
		errs = v.runFieldRules(errs, v.preRules[field], row, rowIndex, nil)
	}
	return errs
}

// ValidatePost runs the reference and custom rules for one row, given the
// resolved reference map. Only rows that passed ValidatePre without blocking
// errors should reach this phase.
func (v *Validator) ValidatePost(row RawRow, rowIndex int, refs *ReferenceMap) []ValidationError {
	var errs []ValidationError
	for _, field := range v.fieldOrder {
		errs = v.runFieldRules(errs, v.postRules[field], row, rowIndex, refs)
	}
	return errs
}

// runFieldRules evaluates one field's rules in order, stopping at the
// first blocking failure for that field. Warnings never stop evaluation.
func (v *Validator) runFieldRules(errs []ValidationError, rules []ValidationRule, row RawRow, rowIndex int, refs *ReferenceMap) []ValidationError {
	for _, rule := range rules {
		ve := v.applyRule(rule, row, rowIndex, refs)
		if ve == nil {
			continue
		}
		errs = append(errs, *ve)
		if ve.Severity == SeverityError {
			break
		}
	}
	return errs
}

// applyRule evaluates a single rule against a row. Returns nil on pass.
func (v *Validator) applyRule(rule ValidationRule, row RawRow, rowIndex int, refs *ReferenceMap) *ValidationError {
	raw := v.fieldValue(row, rule.Field)

	fail := func(msg string) *ValidationError {
		if rule.Message != "" {
			msg = rule.Message
		}
		return &ValidationError{
			RowIndex: rowIndex,
			Field:    rule.Field,
			Value:    raw,
			Message:  msg,
			Severity: rule.severity(),
			Code:     rule.Kind.Code(),
		}
	}

	switch rule.Kind {
	case RuleRequired:
		if raw == "" {
			return fail("required field is empty")
		}

	case RuleFormat:
		// Required-ness is a separate rule; empty values pass.
		if raw == "" {
			return nil
		}
		if rule.Pattern != nil {
			if !rule.Pattern.MatchString(raw) {
				return fail("invalid format")
			}
			return nil
		}
		if len(rule.EnumValues) > 0 {
			for _, ev := range rule.EnumValues {
				if NormalizeValue(ev) == NormalizeValue(raw) {
					return nil
				}
			}
			return fail(fmt.Sprintf("value must be one of: %s", strings.Join(rule.EnumValues, ", ")))
		}
		// Fall back to the declared type: coercion left bad values as text.
		if spec, ok := v.def.FieldSpecFor(rule.Field); ok {
			cell := row.Get(rule.Field)
			switch spec.Type {
			case FieldDate:
				if cell.Kind != CellDate {
					return fail("invalid date format (use YYYY-MM-DD or similar)")
				}
			case FieldNumeric:
				if cell.Kind != CellNumber {
					return fail("invalid number format")
				}
			case FieldBool:
				if cell.Kind != CellBool {
					return fail("must be yes/no, true/false, or 1/0")
				}
			}
		}

	case RuleUniqueInBatch:
		if raw == "" {
			return nil
		}
		dups := v.batchValues[normalizeLabel(rule.Field)][NormalizeValue(raw)]
		// Exclude the row itself by index, not by value: two distinct rows
		// may legitimately share every other field.
		for _, at := range dups {
			if at != rowIndex {
				return fail(fmt.Sprintf("duplicate value in batch (also at row %d)", at))
			}
		}

	case RuleUniqueInStore:
		if raw == "" {
			return nil
		}
		if id, ok := v.index.ActiveID(rule.Field, raw); ok && id != v.excludeID {
			return fail("value already exists")
		}
		// Without activate intent an inactive natural-key match is a
		// duplicate, not a reactivation candidate: resubmitting a batch
		// must never insert the same record twice.
		if normalizeLabel(rule.Field) == normalizeLabel(v.def.NaturalKey) &&
			!v.def.activateIntent(row, v.forceActivate) {
			if id, ok := v.index.InactiveID(rule.Field, raw); ok && id != v.excludeID {
				return fail("value already exists on an inactive record")
			}
		}

	case RuleReference:
		if raw == "" {
			return nil
		}
		entity := rule.RefEntity
		if entity == "" {
			if rs, ok := v.def.ReferenceFor(rule.Field); ok {
				entity = rs.Entity
			}
		}
		switch _, status := refs.Resolve(entity, raw); status {
		case ResolveAmbiguous:
			return fail(fmt.Sprintf("ambiguous %s name, use the id instead", entity))
		case ResolveNotFound:
			ve := fail(fmt.Sprintf("unknown %s", entity))
			ve.Suggestion = refs.Suggestion(entity, raw)
			return ve
		}

	case RuleCustom:
		if rule.Check == nil {
			return nil
		}
		if ve := rule.Check(row); ve != nil {
			ve.RowIndex = rowIndex
			if ve.Field == "" {
				ve.Field = rule.Field
			}
			if ve.Severity == "" {
				ve.Severity = rule.severity()
			}
			if ve.Code == "" {
				ve.Code = CodeCustom
			}
			return ve
		}
	}

	return nil
}

// HasBlocking reports whether any of the errors is severity error; rows
// with only warnings are still classified and executed.
func HasBlocking(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
