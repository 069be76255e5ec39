// Package web exposes the merge workspace over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/pdf"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/selection"
	"github.com/local/pdfmerger/internal/source"
	"github.com/local/pdfmerger/internal/statuscheck"
	"github.com/local/pdfmerger/internal/store"
	"github.com/local/pdfmerger/internal/workspace"
)

// StatusStore persists merge job status.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// Thumbnailer renders one 0-based page of a document as JPEG.
type Thumbnailer interface {
	Thumbnail(data []byte, page int, mode pdf.ColorMode) ([]byte, error)
}

// HealthChecker reports subsystem readiness.
type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Workspace *workspace.Workspace
	Merger    workspace.Merger
	Status    StatusStore
	Resolver  source.Resolver
	Thumbs    Thumbnailer
	Health    HealthChecker

	AllowedOrigins []string
	MaxUploadBytes int64
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 256 << 20
	}
	return &Server{deps: deps}
}

// Router builds the HTTP handler with all routes and CORS configured.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/health/details", s.handleHealthDetails).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Documents
	api.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/documents/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/documents/sort", s.handleSort).Methods(http.MethodPost)
	api.HandleFunc("/documents/active", s.handleActivateAll).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.handleRemove).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/active", s.handleSetActive).Methods(http.MethodPut)

	// Pages
	api.HandleFunc("/documents/{id}/pages/all", s.handleSelectAll).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/pages", s.handleClearPages).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/pages/range", s.handleSelectRange).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/pages/{page:[0-9]+}/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/pages/{page:[0-9]+}/thumbnail", s.handleThumbnail).Methods(http.MethodGet)

	// Merge jobs
	api.HandleFunc("/merge", s.handleMerge).Methods(http.MethodPost)
	api.HandleFunc("/merge/{job}", s.handleMergeStatus).Methods(http.MethodGet)
	api.HandleFunc("/merge/{job}/download", s.handleDownload).Methods(http.MethodGet)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
		},
		ExposedHeaders: []string{
			"Content-Disposition",
		},
		MaxAge: 300,
	})
	return c.Handler(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pdfmerger"})
}

func (s *Server) handleHealthDetails(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeError(w, http.StatusNotImplemented, "health checks not configured")
		return
	}
	sum := s.deps.Health.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeErr maps a domain error onto its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrBusy), errors.Is(err, registry.ErrDuplicateDocument):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, selection.ErrUnknownDocument):
		return http.StatusNotFound
	case errors.Is(err, selection.ErrInvalidRange),
		errors.Is(err, registry.ErrInvalidPosition),
		errors.Is(err, registry.ErrUnknownSortMethod):
		return http.StatusBadRequest
	case errors.Is(err, merge.ErrNoDocumentsSelected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workspace.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
