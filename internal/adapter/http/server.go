package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job is what the ops server reports on while a composite job runs.
// CheckReadiness returns nil once the scene collections are resolved.
type Job interface {
	sharedobs.ReadinessChecker
	// Results returns the exports written so far.
	Results() []domain.ExportResult
}

// Server is the ops endpoint of a composite run: liveness, readiness,
// exports written so far, and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	job        Job
	logger     *slog.Logger
}

// NewServer registers /healthz, /readyz, /exports, /exports/{name} and /metrics.
func NewServer(addr string, job Job, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		job:    job,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(job))
	mux.HandleFunc("GET /exports", s.handleExports)
	mux.HandleFunc("GET /exports/{name}", s.handleExport)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleExports(w http.ResponseWriter, _ *http.Request) {
	results := s.job.Results()
	if results == nil {
		results = []domain.ExportResult{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"exports": results})
}

// handleExport reports one export by name; 404 until the job has written it.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, res := range s.job.Results() {
		if res.Name == name {
			sharedobs.WriteJSON(w, http.StatusOK, res)
			return
		}
	}
	sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "export " + name + " not written"})
}
