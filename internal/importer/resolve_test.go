package importer

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

// fakeLookup is an in-memory Lookup for resolver tests.
type fakeLookup struct {
	refs map[string][]Ref // entity -> known records
	err  error
}

func (f *fakeLookup) RefsByIDs(ctx context.Context, entity string, ids []uuid.UUID) ([]Ref, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Ref
	for _, r := range f.refs[entity] {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLookup) RefsByNames(ctx context.Context, entity string, names []string) ([]Ref, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[NormalizeValue(n)] = true
	}
	var out []Ref
	for _, r := range f.refs[entity] {
		if want[NormalizeValue(r.Name)] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLookup) RefNames(ctx context.Context, entity string, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, r := range f.refs[entity] {
		out = append(out, r.Name)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLookup) KeysByValues(ctx context.Context, entity, column string, values []string, active bool) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, f.err
}

func TestResolverBuild(t *testing.T) {
	def := vehicleTestDef()
	companyA := Ref{ID: uuid.New(), Name: "Transportes Sur"}
	companyB := Ref{ID: uuid.New(), Name: "Logistica Norte"}

	lookup := &fakeLookup{refs: map[string][]Ref{
		"companies": {companyA, companyB},
	}}

	rows := []RawRow{
		testRow(def, "plate", "AAA111", "company", "Transportes Sur"),
		testRow(def, "plate", "BBB222", "company", companyB.ID.String()),
		testRow(def, "plate", "CCC333", "company", "No Such Company"),
	}

	refs, err := NewResolver(lookup).Build(context.Background(), def, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if id, status := refs.Resolve("companies", "transportes sur"); status != ResolveOK || id != companyA.ID {
		t.Errorf("by name: got (%v, %v), want (%v, ResolveOK)", id, status, companyA.ID)
	}
	if id, status := refs.Resolve("companies", companyB.ID.String()); status != ResolveOK || id != companyB.ID {
		t.Errorf("by id: got (%v, %v), want (%v, ResolveOK)", id, status, companyB.ID)
	}
	if _, status := refs.Resolve("companies", "No Such Company"); status != ResolveNotFound {
		t.Errorf("unknown: status = %v, want ResolveNotFound", status)
	}
}

func TestResolverAmbiguousName(t *testing.T) {
	def := vehicleTestDef()
	lookup := &fakeLookup{refs: map[string][]Ref{
		"companies": {
			{ID: uuid.New(), Name: "Acme"},
			{ID: uuid.New(), Name: "ACME"}, // same normalized name, distinct record
		},
	}}

	rows := []RawRow{testRow(def, "plate", "AAA111", "company", "Acme")}

	refs, err := NewResolver(lookup).Build(context.Background(), def, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, status := refs.Resolve("companies", "acme"); status != ResolveAmbiguous {
		t.Errorf("status = %v, want ResolveAmbiguous", status)
	}
	if id := refs.MustResolve("companies", "acme"); id != uuid.Nil {
		t.Errorf("MustResolve on ambiguous = %v, want Nil", id)
	}
}

func TestResolverSuggestion(t *testing.T) {
	def := vehicleTestDef()
	lookup := &fakeLookup{refs: map[string][]Ref{
		"companies": {{ID: uuid.New(), Name: "Transportes Sur"}},
	}}

	rows := []RawRow{
		testRow(def, "plate", "AAA111", "company", "Transportes Sr"), // typo
		testRow(def, "plate", "BBB222", "company", "Zzz Qqq"),        // nothing close
	}

	refs, err := NewResolver(lookup).Build(context.Background(), def, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := refs.Suggestion("companies", "Transportes Sr"); got != "Transportes Sur" {
		t.Errorf("suggestion = %q, want Transportes Sur", got)
	}
	if got := refs.Suggestion("companies", "Zzz Qqq"); got != "" {
		t.Errorf("suggestion = %q, want none below threshold", got)
	}
}

func TestClosestMatch(t *testing.T) {
	candidates := []string{"Transportes Sur", "Logistica Norte"}

	tests := []struct {
		value  string
		want   string
		wantOK bool
	}{
		{"transportes sur", "Transportes Sur", true},
		{"Transportes Su", "Transportes Sur", true},
		{"completely different", "", false},
	}
	for _, tt := range tests {
		got, ok := closestMatch(tt.value, candidates)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("closestMatch(%q) = (%q, %v), want (%q, %v)", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestReferenceMapNil(t *testing.T) {
	var m *ReferenceMap
	if _, status := m.Resolve("companies", "x"); status != ResolveNotFound {
		t.Errorf("nil map Resolve status = %v, want ResolveNotFound", status)
	}
	if got := m.Suggestion("companies", "x"); got != "" {
		t.Errorf("nil map Suggestion = %q, want empty", got)
	}
}
