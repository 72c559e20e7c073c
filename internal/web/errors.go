package web

// errors.go provides unified error responses for the JSON API. Technical
// details are logged server-side with the request ID; clients get a stable
// {error, message, code} shape.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the client-facing shape.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	code, message := classify(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
	})
}

// classify maps internal errors to a stable code and user-facing message.
func classify(err error) (code, message string) {
	switch {
	case errors.Is(err, importer.ErrUnknownEntity):
		return "unknown_entity", "The requested entity type does not exist."
	case errors.Is(err, importer.ErrBatchTooLarge):
		return "batch_too_large", "The file has more rows than a single import allows. Split it and retry."
	default:
		return "internal", "Something went wrong processing the request. Try again or contact support."
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
