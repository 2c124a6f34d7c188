// Package api serves the provision calculator over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
	"github.com/sells-group/provision-cli/internal/store"
)

// Options configures a Server.
type Options struct {
	Runner      *provision.Runner
	Store       store.Store // nil disables run recording and the /v1/runs routes
	CORSOrigins []string
	MaxBodyMB   int
	Concurrency int
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	runner      *provision.Runner
	store       store.Store
	origins     []string
	maxBody     int64
	concurrency int
}

// NewServer creates a Server. MaxBodyMB defaults to 64 and Concurrency to 1.
func NewServer(opts Options) *Server {
	s := &Server{
		runner:      opts.Runner,
		store:       opts.Store,
		origins:     opts.CORSOrigins,
		maxBody:     64 << 20,
		concurrency: opts.Concurrency,
	}
	if opts.MaxBodyMB > 0 {
		s.maxBody = int64(opts.MaxBodyMB) << 20
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/services", s.handleServices)
		r.Post("/provision", s.handleProvision)

		if s.store != nil {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/results", s.handleGetResults)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serviceInfo struct {
	Name     string  `json:"name"`
	Standard float64 `json:"standard"`
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	standards := s.runner.Standards()
	out := make([]serviceInfo, 0, len(standards))
	for _, name := range standards.Services() {
		out = append(out, serviceInfo{Name: name, Standard: standards[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
