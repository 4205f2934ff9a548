// Package api is the HTTP surface over the grading pipeline and the timed
// assessment state machine.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/config"
	"classroom-grader/internal/monitor"
	"classroom-grader/internal/storage"
)

// Server is the main HTTP server for the grading API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and
// middleware. db, handlers' collaborators and metrics may be nil; poolSize
// reports running sandbox containers for the health endpoint.
func NewServer(cfg *config.Config, handlers *Handlers, db *storage.DB, metrics *monitor.Metrics, poolSize func() int) *Server {
	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/grade", handlers.HandleGrade)
	mux.HandleFunc("POST /api/v1/attempts/start", handlers.HandleAttemptStart)
	mux.HandleFunc("GET /api/v1/attempts/status", handlers.HandleAttemptStatus)
	mux.HandleFunc("POST /api/v1/attempts/submit", handlers.HandleAttemptSubmit)
	mux.HandleFunc("GET /api/v1/submissions", handlers.HandleListSubmissions)
	mux.HandleFunc("GET /api/v1/submissions/{id}", handlers.HandleGetSubmission)
	mux.HandleFunc("GET /health", s.handleHealth(db, poolSize))
	if metrics != nil && cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(db *storage.DB, poolSize func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := db == nil || db.Healthy(r.Context())

		containers := 0
		if poolSize != nil {
			containers = poolSize()
		}

		resp := HealthResponse{
			Status:   "ok",
			Database: dbOK,
			Sandbox:  containers,
			Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		}

		if !dbOK {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, resp)
	}
}
