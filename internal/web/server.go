// Package web exposes the HTTP API consumed by the field terminals.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/ayoubbns/vinscan/internal/auth"
	"github.com/ayoubbns/vinscan/internal/domain"
	"github.com/ayoubbns/vinscan/internal/photostore"
	"github.com/ayoubbns/vinscan/internal/scan"
	"github.com/ayoubbns/vinscan/internal/store"
)

type Server struct {
	scans     *scan.Service
	auth      *auth.Service
	operators *store.OperatorStore
	locations *store.LocationStore
	settings  *store.SettingsStore
	photos    photostore.PhotoStore
	logger    *slog.Logger
	validate  *validator.Validate
	router    chi.Router
}

func NewServer(scans *scan.Service, authSvc *auth.Service, operators *store.OperatorStore,
	locations *store.LocationStore, settings *store.SettingsStore,
	photos photostore.PhotoStore, logger *slog.Logger) *Server {
	s := &Server{
		scans:     scans,
		auth:      authSvc,
		operators: operators,
		locations: locations,
		settings:  settings,
		photos:    photos,
		logger:    logger,
		validate:  validator.New(),
	}
	s.router = s.buildRouter()
	return s
}

// route binds one endpoint to the capability that gates it. An empty
// capability means any authenticated operator may call it.
type route struct {
	method     string
	pattern    string
	handler    http.HandlerFunc
	capability string
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/api/me", s.handleMe, ""},
		{http.MethodGet, "/api/locations", s.handleListLocations, ""},

		{http.MethodPost, "/api/scans/image", s.handleImageScan, domain.CapScanner},
		{http.MethodPost, "/api/scans/vin", s.handleVINScan, domain.CapScanner},
		{http.MethodGet, "/api/drafts/{id}", s.handleGetDraft, domain.CapScanner},
		{http.MethodPut, "/api/drafts/{id}", s.handleUpdateDraft, domain.CapScanner},
		{http.MethodDelete, "/api/drafts/{id}", s.handleDiscardDraft, domain.CapScanner},
		{http.MethodPost, "/api/drafts/{id}/commit", s.handleCommit, domain.CapScanner},

		{http.MethodGet, "/api/scans", s.handleListScans, domain.CapHistory},
		{http.MethodGet, "/api/scans/export", s.handleExportScans, domain.CapHistory},
		{http.MethodGet, "/api/scans/{id}", s.handleGetScan, domain.CapHistory},
		{http.MethodDelete, "/api/scans/{id}", s.handleDeleteScan, domain.CapHistory},
		{http.MethodGet, "/api/scans/{id}/photo", s.handleGetPhoto, domain.CapHistory},
		{http.MethodPost, "/api/scans/{id}/report", s.handleReport, domain.CapHistory},
		{http.MethodPost, "/api/scans/{id}/value", s.handleMarketValue, domain.CapHistory},

		{http.MethodGet, "/api/stats", s.handleStats, domain.CapDashboard},
		{http.MethodPost, "/api/chat", s.handleChat, domain.CapChat},

		{http.MethodGet, "/api/settings", s.handleGetSettings, ""},
		{http.MethodPut, "/api/settings", s.handlePutSettings, domain.CapConfigCompany},

		{http.MethodPost, "/api/locations", s.handleCreateLocation, domain.CapConfigLocations},
		{http.MethodDelete, "/api/locations/{id}", s.handleDeleteLocation, domain.CapConfigLocations},

		{http.MethodGet, "/api/operators", s.handleListOperators, domain.CapConfigUsers},
		{http.MethodPost, "/api/operators", s.handleCreateOperator, domain.CapConfigUsers},
		{http.MethodDelete, "/api/operators/{id}", s.handleDeleteOperator, domain.CapConfigUsers},
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		for _, rt := range s.routes() {
			h := rt.handler
			if rt.capability != "" {
				h = s.requirePermission(rt.capability, h)
			}
			r.Method(rt.method, rt.pattern, h)
		}
	})

	return r
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}
