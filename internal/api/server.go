package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/engine"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/metrics"
	"github.com/JakeFAU/realtime-content-feed/internal/query"
)

// Runner triggers aggregation runs.
type Runner interface {
	RunAll(ctx context.Context) (engine.Report, error)
}

// Querier answers read queries.
type Querier interface {
	Page(ctx context.Context, f query.Filter, page, limit int) (query.PageResult, error)
	List(ctx context.Context, f query.Filter, limit int, radius *query.Radius) ([]feed.Record, error)
	Stats(ctx context.Context) (query.Stats, error)
}

// KeyService authenticates and issues API keys.
type KeyService interface {
	Authenticate(ctx context.Context, key string) (feed.AccessKey, error)
	Issue(ctx context.Context, owner string) (feed.AccessKey, error)
}

// RunLogLister lists recent run log entries, newest first.
type RunLogLister interface {
	ListRunLogs(ctx context.Context, limit int) ([]feed.RunLogEntry, error)
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface. Ready may be nil.
type Deps struct {
	Runner  Runner
	Query   Querier
	Keys    KeyService
	RunLogs RunLogLister
	Ready   Pinger
}

// Options tune the HTTP surface.
type Options struct {
	// AuthEnabled guards the keyed routes with API key checks.
	AuthEnabled    bool
	RequestTimeout time.Duration
	Taxonomy       string
	Categories     []string
	// TracerProvider and Propagator default to the otel globals.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// Server wires HTTP handlers to the engine, query service and key guard.
type Server struct {
	router  chi.Router
	runner  Runner
	query   Querier
	keys    KeyService
	runLogs RunLogLister
	ready   Pinger
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	prop := opts.Propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	s := &Server{
		runner:  deps.Runner,
		query:   deps.Query,
		keys:    deps.Keys,
		runLogs: deps.RunLogs,
		ready:   deps.Ready,
		opts:    opts,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(tracingMiddleware(tp.Tracer("github.com/JakeFAU/realtime-content-feed/internal/api"), prop))
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	// Runs can outlast the request timeout.
	r.Post("/api/scrape", s.scrape)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))

		r.Get("/api/content", s.content)
		r.Get("/api/stats", s.stats)
		r.Post("/api/v1/register", s.register)
		r.Get("/api/v1/categories", s.categories)

		r.Group(func(r chi.Router) {
			if opts.AuthEnabled {
				r.Use(s.apiKeyMiddleware)
			}
			r.Get("/api/v1/feed", s.feedPage)
			r.Get("/api/v1/runs", s.runs)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
