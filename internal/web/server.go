// Package web provides the HTTP server and JSON API for the fleet
// administration backend: bulk import endpoints, entity listings, and CSV
// template downloads. Spreadsheet parsing and import semantics live in the
// sheet and importer packages; handlers here only shape requests and
// responses.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/config"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/store"
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	importer *importer.Service
	store    *store.Store
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server instance.
func NewServer(svc *importer.Service, st *store.Store, cfg *config.Config) *Server {
	s := &Server{
		importer: svc,
		store:    st,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Entity catalog
		r.Get("/entities", s.handleListEntities)
		r.Get("/template/{entity}", s.handleDownloadTemplate)

		// Bulk import
		r.Post("/import/{entity}", s.handleImport)

		// Data listing
		r.Get("/{entity}/rows", s.handleListRows)
	})
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// handleHealth reports liveness including a database ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Pool().Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
