package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/config"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

// memStore is an in-memory importer.Store for handler tests. It records
// executed batches and answers every lookup with nothing.
type memStore struct {
	executed [][]importer.Operation
}

func (m *memStore) RefsByIDs(ctx context.Context, entity string, ids []uuid.UUID) ([]importer.Ref, error) {
	return nil, nil
}

func (m *memStore) RefsByNames(ctx context.Context, entity string, names []string) ([]importer.Ref, error) {
	return nil, nil
}

func (m *memStore) RefNames(ctx context.Context, entity string, limit int) ([]string, error) {
	return nil, nil
}

func (m *memStore) KeysByValues(ctx context.Context, entity, column string, values []string, active bool) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

func (m *memStore) ExecuteBatch(ctx context.Context, entity string, ops []importer.Operation) (importer.BulkReport, error) {
	m.executed = append(m.executed, ops)
	report := importer.BulkReport{}
	for _, op := range ops {
		if op.Kind == importer.OpUpdate {
			report.Updated++
		} else {
			report.Inserted++
		}
	}
	return report, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 10 * time.Second
	cfg.Import.MaxBatchRows = 100
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.Timeout = time.Minute
	return cfg
}

// newTestServer wires a Server over the in-memory store with one
// registered entity. The nil store.Store is fine for the routes under
// test; only /healthz and row listing touch the database directly.
func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()

	importer.ClearRegistry()
	importer.Register(importer.Definition{
		Info:       importer.EntityInfo{Key: "vehicles", Label: "Vehicles", Table: "vehicles"},
		NaturalKey: "plate",
		Fields: []importer.FieldSpec{
			{Name: "plate", Type: importer.FieldText, Required: true, Normalizer: strings.ToUpper},
			{Name: "year", Type: importer.FieldNumeric},
		},
		Rules: []importer.ValidationRule{
			{Field: "plate", Kind: importer.RuleRequired},
			{Field: "plate", Kind: importer.RuleUniqueInBatch},
			{Field: "plate", Kind: importer.RuleUniqueInStore},
		},
		BuildFields: func(row importer.RawRow, refs *importer.ReferenceMap) (map[string]any, error) {
			return map[string]any{"plate": strings.ToUpper(row.Get("plate").Raw)}, nil
		},
	})
	t.Cleanup(importer.ClearRegistry)

	ms := &memStore{}
	return NewServer(importer.NewService(ms), nil, testConfig()), ms
}

func TestListEntities(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out []entityInfo
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Key != "vehicles" {
		t.Fatalf("entities = %+v, want one vehicles entry", out)
	}
	if out[0].NaturalKey != "plate" || len(out[0].Columns) != 2 {
		t.Errorf("entity = %+v", out[0])
	}
}

func TestDownloadTemplate(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/template/vehicles", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "plate,year" {
		t.Errorf("template = %q, want header row", got)
	}
}

func TestDownloadTemplateUnknownEntity(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/template/spaceships", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "unknown_entity" {
		t.Errorf("code = %q, want unknown_entity", resp.Code)
	}
}

func TestImportCSVBody(t *testing.T) {
	s, ms := newTestServer(t)

	body := strings.NewReader("plate,year\nabc123,2020\ndef456,2021\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import/vehicles", body)
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result importer.BatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.TotalRows != 2 || result.InsertedCount != 2 {
		t.Errorf("result = %+v, want 2 rows inserted", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
	if len(ms.executed) != 1 || len(ms.executed[0]) != 2 {
		t.Errorf("executed = %v, want one batch of two ops", ms.executed)
	}
}

func TestImportRejectsInvalidRows(t *testing.T) {
	s, _ := newTestServer(t)

	// Second row misses the required plate.
	body := strings.NewReader("plate,year\nabc123,2020\n,2021\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import/vehicles", body)
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result importer.BatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.InsertedCount != 1 || len(result.Errors) != 1 {
		t.Errorf("result = %+v, want one inserted and one error", result)
	}
	if result.Errors[0].RowIndex != 2 {
		t.Errorf("error row = %d, want 2", result.Errors[0].RowIndex)
	}
}

func TestImportDryRun(t *testing.T) {
	s, ms := newTestServer(t)

	body := strings.NewReader("plate,year\nabc123,2020\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import/vehicles?dry_run=1", body)
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result importer.BatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.DryRun || result.InsertedCount != 1 {
		t.Errorf("result = %+v, want dry-run with one would-insert", result)
	}
	if len(ms.executed) != 0 {
		t.Error("dry run must not execute")
	}
}

func TestImportUnknownEntity(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import/spaceships", strings.NewReader("plate\nabc123\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "unknown_entity" {
		t.Errorf("code = %q, want unknown_entity", resp.Code)
	}
}

func TestImportEmptyBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import/vehicles", strings.NewReader(""))
	req.Header.Set("Content-Type", "text/csv")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
