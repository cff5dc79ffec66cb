// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/elorank/internal/adapters/repository"
	service "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	"github.com/okian/elorank/internal/domain/types"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	RegisterItems(ctx context.Context, collection string, items []string) (int, error)
	Items(collection string) ([]string, error)
	NextMatchup(ctx context.Context, collection string) (model.Matchup, bool, error)
	Judge(ctx context.Context, j model.Judgment) (service.JudgeResult, error)
	Convergence(ctx context.Context, collection string) (float64, error)
	Standings(ctx context.Context, collection string, limit int) ([]types.Standing, error)
	Record(ctx context.Context, collection, item string) (model.Record, error)
	Subscribe(ctx context.Context, collection string, fn func(model.Snapshot)) (func(), error)
	Export(ctx context.Context, collection, path string) (repository.ExportDocument, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	validate *validator.Validate
	logger   logger.Logger

	judgmentRateLimit int
	maxStandings      int
	pingInterval      time.Duration
	ratingScale       float64
	exportDir         string

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:              deps,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		logger:            logger.Nop(),
		judgmentRateLimit: defaultJudgmentRateLimit,
		maxStandings:      defaultMaxStandings,
		pingInterval:      defaultPingInterval,
		ratingScale:       rating.DefaultScale,
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router for the business API. extra registers
// additional routes, such as the API docs, on the same router.
func (s *Server) Routes(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	r.Route("/collections/{id}", func(r chi.Router) {
		r.Put("/items", s.handlePutItems)
		r.Get("/items", s.handleGetItems)
		r.Get("/items/{item}", s.handleGetRecord)
		r.Get("/matchup", s.handleGetMatchup)
		r.With(s.judgmentLimiter()).Post("/judgments", s.handlePostJudgment)
		r.Get("/convergence", s.handleGetConvergence)
		r.Get("/standings", s.handleGetStandings)
		r.Get("/live", s.handleLive)
		if s.exportDir != "" {
			r.Post("/export", s.handlePostExport)
		}
	})

	for _, fn := range extra {
		fn(r)
	}
	return r
}

// judgmentLimiter throttles judgment submissions per client address.
func (s *Server) judgmentLimiter() func(http.Handler) http.Handler {
	if s.judgmentRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.judgmentRateLimit,
		time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", ErrRateLimited)
		}),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
