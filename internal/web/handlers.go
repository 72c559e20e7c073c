package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/sheet"
)

// entityInfo is the catalog shape returned by /api/entities.
type entityInfo struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	Columns    []string `json:"columns"`
	NaturalKey string   `json:"naturalKey"`
}

// handleListEntities returns the registered importable entity types.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	defs := importer.All()
	out := make([]entityInfo, len(defs))
	for i, def := range defs {
		out[i] = entityInfo{
			Key:        def.Info.Key,
			Label:      def.Info.Label,
			Columns:    def.Columns(),
			NaturalKey: def.NaturalKey,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// handleDownloadTemplate returns a CSV header row for the entity's
// expected columns, for users building an import file.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	def, ok := importer.Get(entity)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", importer.ErrUnknownEntity, entity), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", def.Info.Key+"_template.csv"))
	fmt.Fprintln(w, strings.Join(def.Columns(), ","))
}

// handleImport accepts a CSV upload (multipart "file" field or a raw
// text/csv body) and runs the import pipeline for the entity. Query
// parameters: dry_run=1 to validate without writing, activate=1 to force
// reactivation intent for the whole batch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	def, ok := importer.Get(entity)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", importer.ErrUnknownEntity, entity), http.StatusNotFound)
		return
	}

	data, err := s.readUpload(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	table, err := sheet.ReadTable(data, requiredColumns(def))
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	rows := importer.CoerceRecords(def, table.Header, table.Records)
	opts := importer.Options{
		DryRun:   boolParam(r, "dry_run"),
		Activate: boolParam(r, "activate"),
		MaxRows:  s.cfg.Import.MaxBatchRows,
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	result, err := s.importer.ImportBatch(ctx, entity, rows, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, importer.ErrBatchTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.respondError(w, r, err, status)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListRows returns stored records of an entity, newest first.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, ok := importer.Get(entity); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", importer.ErrUnknownEntity, entity), http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := s.store.ListRows(r.Context(), entity, limit, offset)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []map[string]any{}
	}
	respondJSON(w, http.StatusOK, records)
}

// readUpload extracts the CSV payload from a multipart form or raw body.
func (s *Server) readUpload(r *http.Request) ([]byte, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(nil, r.Body, maxSize)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	return data, nil
}

// requiredColumns returns the labels header detection must find: required
// fields only, so optional columns can be omitted from the file.
func requiredColumns(def importer.Definition) []string {
	var cols []string
	for _, f := range def.Fields {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	if len(cols) == 0 {
		cols = def.Columns()
	}
	return cols
}

func boolParam(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
