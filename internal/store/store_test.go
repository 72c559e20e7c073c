package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

func TestMetaFor(t *testing.T) {
	for _, entity := range []string{"companies", "personnel", "vehicles"} {
		meta, err := metaFor(entity)
		if err != nil {
			t.Errorf("metaFor(%s): %v", entity, err)
		}
		if meta.table == "" {
			t.Errorf("metaFor(%s) = %+v, want table", entity, meta)
		}
	}

	// Only companies are referenced by display name; the rest have no
	// name column to resolve against.
	meta, err := metaFor("companies")
	if err != nil {
		t.Fatalf("metaFor(companies): %v", err)
	}
	if meta.nameColumn == "" {
		t.Error("companies must carry a name column")
	}

	if _, err := metaFor("spaceships"); err == nil {
		t.Error("unknown entity must error")
	}
}

func TestFailureFor(t *testing.T) {
	op := importer.Operation{RowIndex: 7}

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "generic error",
			err:      errors.New("boom"),
			wantCode: importer.CodeWriteFailed,
		},
		{
			name:     "stale match",
			err:      errStaleMatch,
			wantCode: importer.CodeStaleMatch,
		},
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: "23505"},
			wantCode: importer.CodeDuplicateKey,
		},
		{
			name:     "foreign key violation",
			err:      &pgconn.PgError{Code: "23503"},
			wantCode: importer.CodeInvalidRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := failureFor(op, tt.err)
			if f.RowIndex != 7 {
				t.Errorf("rowIndex = %d, want 7", f.RowIndex)
			}
			if f.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", f.Code, tt.wantCode)
			}
		})
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]any{"year": 1, "brand": 2, "plate": 3})
	want := []string{"brand", "plate", "year"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestJSONValue(t *testing.T) {
	raw := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	if got, ok := jsonValue(raw).(string); !ok || got != "01020304-0506-0708-090a-0b0c0d0e0f10" {
		t.Errorf("uuid bytes = %v", jsonValue(raw))
	}

	nested := jsonValue([]any{raw, "x"})
	items, ok := nested.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("nested = %v", nested)
	}
	if _, ok := items[0].(string); !ok {
		t.Errorf("nested uuid not flattened: %v", items[0])
	}

	if got := jsonValue("plain"); got != "plain" {
		t.Errorf("passthrough = %v", got)
	}
}
