package importer

// aggregate.go merges validation-phase and execution-phase errors into one
// row-indexed report and tracks each row through its lifecycle:
//
//	Pending -> {RejectedValidation | Ready} -> {Inserted | Updated | RejectedExecution}
//
// Terminal states never transition back. Every row index lands in exactly
// one bucket, and the buckets always sum to the original batch size.

import (
	"fmt"
	"sort"
	"time"
)

// RowState is the lifecycle state of one row.
type RowState int

const (
	StatePending RowState = iota
	StateRejectedValidation
	StateReady
	StateInserted
	StateUpdated
	StateRejectedExecution
)

// Aggregator accumulates per-row outcomes for one batch.
type Aggregator struct {
	entity   string
	states   []RowState
	errors   []RowError
	warnings []RowError
}

// NewAggregator creates an aggregator for a batch of the given size.
func NewAggregator(entity string, total int) *Aggregator {
	return &Aggregator{
		entity: entity,
		states: make([]RowState, total),
	}
}

func (a *Aggregator) transition(rowIndex int, from, to RowState) {
	i := rowIndex - 1
	if i < 0 || i >= len(a.states) {
		return
	}
	if a.states[i] != from {
		panic(fmt.Sprintf("row %d: invalid transition %d -> %d (was %d)", rowIndex, from, to, a.states[i]))
	}
	a.states[i] = to
}

// RejectValidation marks a row rejected during validation and records its
// blocking errors. Warnings on the same row are recorded separately.
func (a *Aggregator) RejectValidation(rowIndex int, errs []ValidationError) {
	a.transition(rowIndex, StatePending, StateRejectedValidation)
	a.record(errs)
}

// MarkReady promotes a row that survived validation.
func (a *Aggregator) MarkReady(rowIndex int) {
	a.transition(rowIndex, StatePending, StateReady)
}

// Warn records non-blocking findings for a row without changing its state.
func (a *Aggregator) Warn(errs []ValidationError) {
	a.record(errs)
}

func (a *Aggregator) record(errs []ValidationError) {
	for _, e := range errs {
		re := RowError{
			RowIndex: e.RowIndex,
			Message:  fmt.Sprintf("%s: %s", e.Field, e.Message),
			Code:     e.Code,
		}
		if e.Value != "" || e.Suggestion != "" {
			re.Data = map[string]string{}
			if e.Value != "" {
				re.Data["value"] = e.Value
			}
			if e.Suggestion != "" {
				re.Data["suggestion"] = e.Suggestion
			}
		}
		if e.Severity == SeverityWarning {
			a.warnings = append(a.warnings, re)
		} else {
			a.errors = append(a.errors, re)
		}
	}
}

// RejectReady fails a row that survived validation but could not be
// classified or executed.
func (a *Aggregator) RejectReady(rowIndex int, re RowError) {
	a.transition(rowIndex, StateReady, StateRejectedExecution)
	a.errors = append(a.errors, re)
}

// RecordExecution applies a bulk report to the ready rows: failed
// operations become execution errors, the rest terminate as inserted or
// updated according to their classified kind.
func (a *Aggregator) RecordExecution(ops []Operation, report BulkReport) {
	failed := make(map[int]OpFailure, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.RowIndex] = f
	}

	for _, op := range ops {
		if f, ok := failed[op.RowIndex]; ok {
			a.transition(op.RowIndex, StateReady, StateRejectedExecution)
			a.errors = append(a.errors, RowError{
				RowIndex: f.RowIndex,
				Message:  f.Message,
				Code:     f.Code,
			})
			continue
		}
		if op.Kind == OpUpdate {
			a.transition(op.RowIndex, StateReady, StateUpdated)
		} else {
			a.transition(op.RowIndex, StateReady, StateInserted)
		}
	}
}

// Counts returns the number of rows in each terminal bucket.
func (a *Aggregator) Counts() (inserted, updated, rejected int) {
	for _, s := range a.states {
		switch s {
		case StateInserted:
			inserted++
		case StateUpdated:
			updated++
		case StateRejectedValidation, StateRejectedExecution:
			rejected++
		}
	}
	return
}

// Result assembles the final BatchResult. The error and warning lists are
// sorted by original row index (stable for multiple findings on one row).
func (a *Aggregator) Result(dryRun bool, elapsed time.Duration) *BatchResult {
	sort.SliceStable(a.errors, func(i, j int) bool {
		return a.errors[i].RowIndex < a.errors[j].RowIndex
	})
	sort.SliceStable(a.warnings, func(i, j int) bool {
		return a.warnings[i].RowIndex < a.warnings[j].RowIndex
	})

	inserted, updated, _ := a.Counts()
	res := &BatchResult{
		Entity:        a.entity,
		TotalRows:     len(a.states),
		InsertedCount: inserted,
		UpdatedCount:  updated,
		Errors:        a.errors,
		Warnings:      a.warnings,
		DryRun:        dryRun,
	}
	if elapsed > 0 {
		res.Duration = elapsed.Round(time.Millisecond).String()
	}
	if res.Errors == nil {
		res.Errors = []RowError{}
	}
	return res
}
