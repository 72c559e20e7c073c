package importer

// classify.go turns validated rows into typed store operations.
//
// Policy is reactivate-or-create: bulk imports frequently re-introduce a
// previously deactivated entity under the same natural key. When the row
// carries explicit activate intent and an inactive record matches the
// natural key, the row becomes an Update that flips the record active while
// applying the row's fields. Everything else is an Insert. A natural key
// matching an *active* record never reaches this point: the unique-in-store
// rule rejects it during validation.

import (
	"fmt"

	"github.com/google/uuid"
)

// Classifier produces exactly one Operation per validated row.
type Classifier struct {
	def   Definition
	index *StoreIndex
	refs  *ReferenceMap

	// forceActivate applies batch-wide activate intent regardless of the
	// per-row activate field.
	forceActivate bool
}

// NewClassifier builds a classifier over the batch's store snapshot and
// resolved references.
func NewClassifier(def Definition, index *StoreIndex, refs *ReferenceMap, forceActivate bool) *Classifier {
	return &Classifier{def: def, index: index, refs: refs, forceActivate: forceActivate}
}

// Classify maps one validated row to an operation. rowIndex is the 1-based
// batch position, carried on the operation for error correlation.
func (c *Classifier) Classify(row RawRow, rowIndex int) (Operation, error) {
	fields, err := c.def.BuildFields(row, c.refs)
	if err != nil {
		return Operation{}, fmt.Errorf("row %d: build fields: %w", rowIndex, err)
	}

	activate := c.def.activateIntent(row, c.forceActivate)

	op := Operation{
		RowIndex: rowIndex,
		Fields:   fields,
		Parent:   c.parentLink(row),
	}

	keySpec, hasKey := c.def.FieldSpecFor(c.def.NaturalKey)
	keyValue := ""
	if hasKey {
		keyValue = row.Get(c.def.NaturalKey).Raw
		if keySpec.Normalizer != nil && keyValue != "" {
			keyValue = keySpec.Normalizer(keyValue)
		}
	}

	if activate && hasKey && keyValue != "" {
		if id, ok := c.index.InactiveID(c.def.NaturalKey, keyValue); ok {
			// Reactivation: match the inactive record by natural key and
			// flip it active with the row's other fields applied.
			op.Kind = OpUpdate
			op.ID = id
			op.Fields["active"] = true
			op.Filter = map[string]any{
				keySpec.DBColumn(): NormalizeValue(keyValue),
				"active":           false,
			}
			return op, nil
		}
	}

	// No explicit intent, or no inactive match: a fresh insert with a new
	// identity. An inactive match without the flag deliberately does not
	// auto-reactivate.
	op.Kind = OpInsert
	op.ID = uuid.New()
	op.Fields["active"] = activate
	return op, nil
}

// parentLink returns the dependent back-reference write for the row's
// parent entity, if the definition declares a collection and the row's
// reference resolved.
func (c *Classifier) parentLink(row RawRow) *ParentLink {
	for _, rs := range c.def.References {
		if rs.Collection == "" {
			continue
		}
		raw := row.Get(rs.Field).Raw
		if raw == "" {
			continue
		}
		if id := c.refs.MustResolve(rs.Entity, raw); id != uuid.Nil {
			return &ParentLink{Entity: rs.Entity, ID: id, Collection: rs.Collection}
		}
	}
	return nil
}
