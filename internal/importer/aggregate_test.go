package importer

import (
	"testing"
	"time"
)

func TestAggregatorLifecycle(t *testing.T) {
	agg := NewAggregator("vehicles", 4)

	// Row 1 fails validation, rows 2-4 are ready.
	agg.RejectValidation(1, []ValidationError{
		{RowIndex: 1, Field: "plate", Message: "required field is empty", Code: CodeRequired},
	})
	agg.MarkReady(2)
	agg.MarkReady(3)
	agg.MarkReady(4)

	// Row 3 fails during execution, row 2 inserts, row 4 updates.
	ops := []Operation{
		{RowIndex: 2, Kind: OpInsert},
		{RowIndex: 3, Kind: OpInsert},
		{RowIndex: 4, Kind: OpUpdate},
	}
	agg.RecordExecution(ops, BulkReport{
		Failures: []OpFailure{
			{RowIndex: 3, Message: "duplicate key", Code: CodeDuplicateKey},
		},
	})

	inserted, updated, rejected := agg.Counts()
	if inserted != 1 || updated != 1 || rejected != 2 {
		t.Fatalf("counts = (%d, %d, %d), want (1, 1, 2)", inserted, updated, rejected)
	}

	res := agg.Result(false, 5*time.Millisecond)

	// Every row lands in exactly one bucket.
	if got := res.InsertedCount + res.UpdatedCount + len(res.Errors); got != res.TotalRows {
		t.Errorf("buckets sum to %d, want %d", got, res.TotalRows)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(res.Errors))
	}
	// Errors come back in original row order regardless of phase.
	if res.Errors[0].RowIndex != 1 || res.Errors[1].RowIndex != 3 {
		t.Errorf("error order = %d, %d, want 1, 3", res.Errors[0].RowIndex, res.Errors[1].RowIndex)
	}
}

func TestAggregatorMultiFieldRejection(t *testing.T) {
	agg := NewAggregator("vehicles", 2)

	// Row 1 fails two fields at once. Each field keeps its own entry so
	// the caller can fix both in one pass, but the row is rejected once.
	agg.RejectValidation(1, []ValidationError{
		{RowIndex: 1, Field: "plate", Message: "required field is empty", Code: CodeRequired},
		{RowIndex: 1, Field: "year", Message: "not a number", Code: CodeFormat},
	})
	agg.MarkReady(2)
	agg.RecordExecution([]Operation{{RowIndex: 2, Kind: OpInsert}}, BulkReport{})

	inserted, updated, rejected := agg.Counts()
	if inserted != 1 || updated != 0 || rejected != 1 {
		t.Fatalf("counts = (%d, %d, %d), want (1, 0, 1)", inserted, updated, rejected)
	}

	res := agg.Result(false, 0)
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want one per failing field", len(res.Errors))
	}

	// Conservation holds over distinct row indices, not error entries.
	failedRows := map[int]bool{}
	for _, e := range res.Errors {
		failedRows[e.RowIndex] = true
	}
	if got := res.InsertedCount + res.UpdatedCount + len(failedRows); got != res.TotalRows {
		t.Errorf("buckets sum to %d, want %d", got, res.TotalRows)
	}
}

func TestAggregatorWarningsDoNotAffectCounts(t *testing.T) {
	agg := NewAggregator("vehicles", 1)
	agg.MarkReady(1)
	agg.Warn([]ValidationError{
		{RowIndex: 1, Field: "year", Message: "old vehicle", Severity: SeverityWarning},
	})
	agg.RecordExecution([]Operation{{RowIndex: 1, Kind: OpInsert}}, BulkReport{})

	res := agg.Result(false, 0)
	if res.InsertedCount != 1 {
		t.Errorf("inserted = %d, want 1", res.InsertedCount)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want none", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", res.Warnings)
	}
}

func TestAggregatorInvalidTransitionPanics(t *testing.T) {
	agg := NewAggregator("vehicles", 1)
	agg.MarkReady(1)

	defer func() {
		if recover() == nil {
			t.Error("second transition from Pending must panic")
		}
	}()
	agg.MarkReady(1)
}

func TestAggregatorDryRunResult(t *testing.T) {
	agg := NewAggregator("vehicles", 2)
	agg.MarkReady(1)
	agg.MarkReady(2)
	// Dry run: execution recorded with an empty report, no failures.
	agg.RecordExecution([]Operation{
		{RowIndex: 1, Kind: OpInsert},
		{RowIndex: 2, Kind: OpUpdate},
	}, BulkReport{})

	res := agg.Result(true, 0)
	if !res.DryRun {
		t.Error("result must carry dry-run flag")
	}
	if res.InsertedCount != 1 || res.UpdatedCount != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", res.InsertedCount, res.UpdatedCount)
	}
}

func TestAggregatorErrorDataCarriesSuggestion(t *testing.T) {
	agg := NewAggregator("vehicles", 1)
	agg.RejectValidation(1, []ValidationError{
		{
			RowIndex:   1,
			Field:      "company",
			Value:      "Transportes Sr",
			Message:    "unknown companies",
			Suggestion: "Transportes Sur",
			Code:       CodeReference,
		},
	})

	res := agg.Result(false, 0)
	if len(res.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(res.Errors))
	}
	data := res.Errors[0].Data
	if data["value"] != "Transportes Sr" || data["suggestion"] != "Transportes Sur" {
		t.Errorf("data = %v", data)
	}
}
