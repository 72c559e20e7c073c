package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// fakeRecord is one stored row for the fake store.
type fakeRecord struct {
	id     uuid.UUID
	name   string
	values map[string]string // column -> normalized value
	active bool
}

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	records  map[string][]fakeRecord // entity -> records
	executed [][]Operation
	failures []OpFailure // returned by the next ExecuteBatch
	execErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string][]fakeRecord)}
}

func (f *fakeStore) add(entity string, rec fakeRecord) {
	f.records[entity] = append(f.records[entity], rec)
}

func (f *fakeStore) RefsByIDs(ctx context.Context, entity string, ids []uuid.UUID) ([]Ref, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Ref
	for _, r := range f.records[entity] {
		if want[r.id] {
			out = append(out, Ref{ID: r.id, Name: r.name})
		}
	}
	return out, nil
}

func (f *fakeStore) RefsByNames(ctx context.Context, entity string, names []string) ([]Ref, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[NormalizeValue(n)] = true
	}
	var out []Ref
	for _, r := range f.records[entity] {
		if want[NormalizeValue(r.name)] {
			out = append(out, Ref{ID: r.id, Name: r.name})
		}
	}
	return out, nil
}

func (f *fakeStore) RefNames(ctx context.Context, entity string, limit int) ([]string, error) {
	var out []string
	for _, r := range f.records[entity] {
		out = append(out, r.name)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) KeysByValues(ctx context.Context, entity, column string, values []string, active bool) (map[string]uuid.UUID, error) {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	out := make(map[string]uuid.UUID)
	for _, r := range f.records[entity] {
		if r.active != active {
			continue
		}
		if v, ok := r.values[column]; ok && want[v] {
			out[v] = r.id
		}
	}
	return out, nil
}

func (f *fakeStore) ExecuteBatch(ctx context.Context, entity string, ops []Operation) (BulkReport, error) {
	if f.execErr != nil {
		return BulkReport{}, f.execErr
	}
	f.executed = append(f.executed, ops)

	failed := make(map[int]bool, len(f.failures))
	for _, fl := range f.failures {
		failed[fl.RowIndex] = true
	}
	var report BulkReport
	report.Failures = f.failures
	for _, op := range ops {
		if failed[op.RowIndex] {
			continue
		}
		if op.Kind == OpUpdate {
			report.Updated++
		} else {
			report.Inserted++
		}
	}
	return report, nil
}

// registerTestEntity installs a definition for the duration of one test.
func registerTestEntity(t *testing.T, def Definition) {
	t.Helper()
	ClearRegistry()
	Register(def)
	t.Cleanup(ClearRegistry)
}

// ----------------------------------------------------------------------------
// Pipeline Tests
// ----------------------------------------------------------------------------

func TestImportBatchMixedOutcomes(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	companyID := uuid.New()
	store.add("companies", fakeRecord{id: companyID, name: "Transportes Sur", active: true})

	rows := []RawRow{
		testRow(def, "plate", "AAA111", "company", "Transportes Sur"),
		testRow(def, "plate", ""),                                  // fails required
		testRow(def, "plate", "BBB222", "company", "No Such Corp"), // fails reference
		testRow(def, "plate", "CCC333"),
	}

	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	// Row conservation: every row lands in exactly one bucket.
	if result.TotalRows != 4 {
		t.Errorf("totalRows = %d, want 4", result.TotalRows)
	}
	if got := result.InsertedCount + result.UpdatedCount + len(result.Errors); got != 4 {
		t.Errorf("buckets sum to %d, want 4", got)
	}
	if result.InsertedCount != 2 {
		t.Errorf("inserted = %d, want 2", result.InsertedCount)
	}

	// Order preservation: errors sorted by original row index.
	if len(result.Errors) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].RowIndex != 2 || result.Errors[1].RowIndex != 3 {
		t.Errorf("error rows = %d, %d, want 2, 3", result.Errors[0].RowIndex, result.Errors[1].RowIndex)
	}
	if result.Errors[0].Code != CodeRequired || result.Errors[1].Code != CodeReference {
		t.Errorf("error codes = %s, %s", result.Errors[0].Code, result.Errors[1].Code)
	}

	// Only valid rows were executed.
	if len(store.executed) != 1 {
		t.Fatalf("executed %d batches, want 1", len(store.executed))
	}
	if len(store.executed[0]) != 2 {
		t.Errorf("executed %d ops, want 2", len(store.executed[0]))
	}
}

func TestImportBatchDuplicateResubmission(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	store.add("vehicles", fakeRecord{
		id:     uuid.New(),
		values: map[string]string{"plate": "aaa111"},
		active: true,
	})

	rows := []RawRow{testRow(def, "plate", "AAA111")}
	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if result.InsertedCount != 0 {
		t.Errorf("inserted = %d, want 0", result.InsertedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].Code != CodeUniqueStore {
		t.Errorf("errors = %v, want one unique_in_store", result.Errors)
	}
	if len(store.executed) != 0 {
		t.Error("nothing should execute when every row is rejected")
	}
}

func TestImportBatchInactiveDuplicateResubmission(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	store.add("vehicles", fakeRecord{
		id:     uuid.New(),
		values: map[string]string{"plate": "aaa111"},
		active: false,
	})

	// Without activate intent the inactive record is a duplicate, so
	// replaying the same batch never grows the table.
	rows := []RawRow{testRow(def, "plate", "AAA111")}
	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if result.InsertedCount != 0 || result.UpdatedCount != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", result.InsertedCount, result.UpdatedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].Code != CodeUniqueStore {
		t.Errorf("errors = %v, want one unique_in_store", result.Errors)
	}
	if len(store.executed) != 0 {
		t.Error("nothing should execute when every row is rejected")
	}
}

func TestImportBatchPartialFailureIsolation(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	store.failures = []OpFailure{
		{RowIndex: 2, Message: "duplicate key value", Code: CodeDuplicateKey},
	}

	rows := []RawRow{
		testRow(def, "plate", "AAA111"),
		testRow(def, "plate", "BBB222"),
		testRow(def, "plate", "CCC333"),
	}

	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if result.InsertedCount != 2 {
		t.Errorf("inserted = %d, want 2", result.InsertedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].RowIndex != 2 {
		t.Fatalf("errors = %v, want one at row 2", result.Errors)
	}
	if result.Errors[0].Code != CodeDuplicateKey {
		t.Errorf("code = %s, want %s", result.Errors[0].Code, CodeDuplicateKey)
	}
}

func TestImportBatchCatastrophicFailure(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	store.execErr = errors.New("connection reset")

	rows := []RawRow{testRow(def, "plate", "AAA111")}
	_, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{})
	if err == nil {
		t.Fatal("want error on transaction failure")
	}
}

func TestImportBatchReactivation(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	inactiveID := uuid.New()
	store.add("vehicles", fakeRecord{
		id:     inactiveID,
		values: map[string]string{"plate": "aaa111"},
		active: false,
	})

	rows := []RawRow{testRow(def, "plate", "AAA111")}
	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{Activate: true})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if result.UpdatedCount != 1 || result.InsertedCount != 0 {
		t.Fatalf("counts = (%d, %d), want (0, 1)", result.InsertedCount, result.UpdatedCount)
	}

	op := store.executed[0][0]
	if op.Kind != OpUpdate || op.ID != inactiveID {
		t.Errorf("op = %+v, want update of %v", op, inactiveID)
	}
}

func TestImportBatchDryRun(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)

	store := newFakeStore()
	rows := []RawRow{
		testRow(def, "plate", "AAA111"),
		testRow(def, "plate", ""),
	}

	result, err := NewService(store).ImportBatch(context.Background(), "vehicles", rows, Options{DryRun: true})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	if !result.DryRun {
		t.Error("result must carry dry-run flag")
	}
	if result.InsertedCount != 1 || len(result.Errors) != 1 {
		t.Errorf("counts = (%d inserted, %d errors), want (1, 1)", result.InsertedCount, len(result.Errors))
	}
	if len(store.executed) != 0 {
		t.Error("dry run must not execute")
	}
}

func TestImportBatchLimits(t *testing.T) {
	def := vehicleTestDef()
	registerTestEntity(t, def)
	store := newFakeStore()
	svc := NewService(store)

	t.Run("unknown entity", func(t *testing.T) {
		_, err := svc.ImportBatch(context.Background(), "spaceships", nil, Options{})
		if !errors.Is(err, ErrUnknownEntity) {
			t.Errorf("err = %v, want ErrUnknownEntity", err)
		}
	})

	t.Run("batch too large", func(t *testing.T) {
		rows := []RawRow{
			testRow(def, "plate", "AAA111"),
			testRow(def, "plate", "BBB222"),
		}
		_, err := svc.ImportBatch(context.Background(), "vehicles", rows, Options{MaxRows: 1})
		if !errors.Is(err, ErrBatchTooLarge) {
			t.Errorf("err = %v, want ErrBatchTooLarge", err)
		}
	})
}
