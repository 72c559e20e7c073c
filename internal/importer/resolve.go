package importer

// resolve.go builds the batch-scoped reference map.
//
// Reference values collected from valid rows are partitioned structurally
// into id-shaped values and display names, then each partition is resolved
// with a single batched store query (per-row lookups would be an N+1
// anti-pattern). Names matching more than one entity are recorded as
// ambiguous and never resolve to an arbitrary candidate. Unresolved names
// may carry a closest-match suggestion; suggestions are attached to errors
// only, never used to auto-resolve.

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
)

// SuggestionThreshold is the minimum similarity ratio for a known name to
// be offered as a closest-match suggestion.
const SuggestionThreshold = 0.75

// suggestionNameLimit caps how many known names are loaded per entity when
// computing suggestions for unresolved values.
const suggestionNameLimit = 500

// ResolveStatus reports the outcome of a reference lookup.
type ResolveStatus int

const (
	ResolveOK ResolveStatus = iota
	ResolveNotFound
	ResolveAmbiguous
)

type refEntry struct {
	id        uuid.UUID
	ambiguous bool
}

// ReferenceMap maps normalized reference values (opaque id strings or
// lower-cased trimmed names) to canonical entity ids, per entity type.
// Built once per batch, read-only afterward.
type ReferenceMap struct {
	entries     map[string]map[string]refEntry
	suggestions map[string]map[string]string
}

// Resolve looks up a reference value for an entity type.
func (m *ReferenceMap) Resolve(entity, value string) (uuid.UUID, ResolveStatus) {
	if m == nil {
		return uuid.Nil, ResolveNotFound
	}
	e, ok := m.entries[entity][NormalizeValue(value)]
	if !ok {
		return uuid.Nil, ResolveNotFound
	}
	if e.ambiguous {
		return uuid.Nil, ResolveAmbiguous
	}
	return e.id, ResolveOK
}

// MustResolve returns the canonical id for a value known to have passed
// reference validation, or uuid.Nil if it did not.
func (m *ReferenceMap) MustResolve(entity, value string) uuid.UUID {
	id, status := m.Resolve(entity, value)
	if status != ResolveOK {
		return uuid.Nil
	}
	return id
}

// Suggestion returns the closest known name for an unresolved value, or "".
func (m *ReferenceMap) Suggestion(entity, value string) string {
	if m == nil {
		return ""
	}
	return m.suggestions[entity][NormalizeValue(value)]
}

// Resolver batch-loads candidate referenced entities and builds the
// ReferenceMap for a batch.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver backed by the given store lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// collectValues gathers the distinct normalized reference values used by
// the given rows, keyed by referenced entity.
func collectValues(def Definition, rows []RawRow) map[string][]string {
	byEntity := make(map[string]map[string]bool)
	for _, rs := range def.References {
		if byEntity[rs.Entity] == nil {
			byEntity[rs.Entity] = make(map[string]bool)
		}
		for _, row := range rows {
			val := NormalizeValue(row.Get(rs.Field).Raw)
			if val != "" {
				byEntity[rs.Entity][val] = true
			}
		}
	}

	out := make(map[string][]string, len(byEntity))
	for entity, set := range byEntity {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		out[entity] = values
	}
	return out
}

// Build resolves all reference values used by the given rows and returns
// the immutable reference map. Unresolvable values are not an error here;
// they surface as reference validation errors on the rows that used them.
func (r *Resolver) Build(ctx context.Context, def Definition, rows []RawRow) (*ReferenceMap, error) {
	m := &ReferenceMap{
		entries:     make(map[string]map[string]refEntry),
		suggestions: make(map[string]map[string]string),
	}

	for entity, values := range collectValues(def, rows) {
		entries := make(map[string]refEntry, len(values))

		// Structural partition: id-shaped values vs. display names. No
		// store round-trip is needed to tell them apart.
		var ids []uuid.UUID
		var names []string
		for _, v := range values {
			if id, err := uuid.Parse(v); err == nil {
				ids = append(ids, id)
			} else {
				names = append(names, v)
			}
		}

		if len(ids) > 0 {
			refs, err := r.lookup.RefsByIDs(ctx, entity, ids)
			if err != nil {
				return nil, fmt.Errorf("resolve %s by id: %w", entity, err)
			}
			for _, ref := range refs {
				entries[ref.ID.String()] = refEntry{id: ref.ID}
			}
		}

		if len(names) > 0 {
			refs, err := r.lookup.RefsByNames(ctx, entity, names)
			if err != nil {
				return nil, fmt.Errorf("resolve %s by name: %w", entity, err)
			}
			for _, ref := range refs {
				key := NormalizeValue(ref.Name)
				if prev, ok := entries[key]; ok && prev.id != ref.ID {
					// Two entities share the name: treat as unresolved,
					// never pick one arbitrarily.
					entries[key] = refEntry{ambiguous: true}
					continue
				}
				entries[key] = refEntry{id: ref.ID}
			}

			r.suggestFor(ctx, m, entity, names, entries)
		}

		m.entries[entity] = entries
	}

	return m, nil
}

// suggestFor computes closest-match suggestions for name values that did
// not resolve. Best-effort: a lookup failure just means no suggestions.
func (r *Resolver) suggestFor(ctx context.Context, m *ReferenceMap, entity string, names []string, entries map[string]refEntry) {
	var unresolved []string
	for _, n := range names {
		if _, ok := entries[n]; !ok {
			unresolved = append(unresolved, n)
		}
	}
	if len(unresolved) == 0 {
		return
	}

	known, err := r.lookup.RefNames(ctx, entity, suggestionNameLimit)
	if err != nil || len(known) == 0 {
		return
	}

	for _, value := range unresolved {
		if best, ok := closestMatch(value, known); ok {
			if m.suggestions[entity] == nil {
				m.suggestions[entity] = make(map[string]string)
			}
			m.suggestions[entity][value] = best
		}
	}
}

// closestMatch returns the candidate most similar to value, if any clears
// the suggestion threshold.
func closestMatch(value string, candidates []string) (string, bool) {
	target := strings.Split(NormalizeValue(value), "")

	best := ""
	bestRatio := 0.0
	for _, c := range candidates {
		ratio := difflib.NewMatcher(target, strings.Split(NormalizeValue(c), "")).Ratio()
		if ratio > bestRatio {
			bestRatio = ratio
			best = c
		}
	}

	if bestRatio >= SuggestionThreshold {
		return best, true
	}
	return "", false
}
