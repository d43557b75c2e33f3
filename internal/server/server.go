// Package server provides the HTTP server and routing for the factor
// research platform's external interface (§6): a thin chi-based layer over
// the result store, query surface and job runtime. No business logic lives
// here beyond request decoding and response shaping.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/jobs"
	"github.com/aristath/factorlab/internal/logbuffer"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config wires the components a router needs.
type Config struct {
	Log       zerolog.Logger
	Factors   *resultstore.FactorStore
	Tasks     *resultstore.TaskStore
	Bundles   *resultstore.BundleStore
	Query     *resultstore.QuerySurface
	Runner    *jobs.Runner
	LogBuffer *logbuffer.Buffer
	Port      int
	DevMode   bool
}

// Server is the HTTP front door: routing, middleware, lifecycle.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	factors *resultstore.FactorStore
	tasks   *resultstore.TaskStore
	bundles *resultstore.BundleStore
	query   *resultstore.QuerySurface
	runner  *jobs.Runner
	logs    *logbuffer.Buffer
}

// New builds a Server with its routes and middleware wired.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		factors: cfg.Factors,
		tasks:   cfg.Tasks,
		bundles: cfg.Bundles,
		query:   cfg.Query,
		runner:  cfg.Runner,
		logs:    cfg.LogBuffer,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/system/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/factors", s.handleCreateFactor)
		r.Post("/factors/{factor_id}", s.handleUpdateFactor)
		r.Get("/factors/{factor_id}", s.handleQueryFactor)
		r.Delete("/factors/{factor_id}", s.handleDeleteFactor)
		r.Get("/factors/{factor_id}/status", s.handleQueryFactorStatus)
		r.Get("/users/{user_id}/factors", s.handleUserFactorList)

		r.Get("/factors/{factor_id}/run", s.handleRunFactor)

		r.Get("/tasks/{task_id}/status", s.handleQueryTaskStatus)
		r.Get("/tasks/{task_id}/logs", s.handleTaskLogs)

		r.Route("/tasks/{task_id}/results", func(r chi.Router) {
			for name, field := range bundleFieldExtractors {
				r.Get("/"+name, s.handleBundleField(field))
			}
		})
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// envelope is the {code, message, data?} shape every endpoint returns.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) writeOK(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Code: "200", Message: "ok", Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusForErr(err)
	s.writeJSON(w, status, envelope{Code: code, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode json response")
	}
}

// statusForErr maps an errs.Kind to the 3-digit HTTP-mirroring code the
// external interface promises. Duplicate-name validation errors are the one
// case the API surface calls out as 409 rather than plain 400.
func statusForErr(err error) (int, string) {
	kind, ok := errs.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "500"
	}
	switch kind {
	case errs.KindValidation:
		if isDuplicateNameErr(err) {
			return http.StatusConflict, "409"
		}
		return http.StatusBadRequest, "400"
	case errs.KindDataAvailability:
		return http.StatusNotFound, "404"
	case errs.KindComputation:
		return http.StatusUnprocessableEntity, "422"
	case errs.KindTransport:
		return http.StatusServiceUnavailable, "503"
	default:
		return http.StatusInternalServerError, "500"
	}
}

func isDuplicateNameErr(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}

// Start begins serving HTTP traffic; it blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Addr returns the address the server is configured to bind, for logging.
func (s *Server) Addr() string { return s.server.Addr }

// Handler exposes the underlying router, mainly so tests can drive it
// through httptest.NewServer without a real listener.
func (s *Server) Handler() http.Handler { return s.router }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}
