package api

import (
	"time"

	"github.com/okian/elorank/pkg/logger"
)

const (
	defaultJudgmentRateLimit = 100
	defaultMaxStandings      = 500
	defaultPingInterval      = 30 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.Named("api")
		}
	}
}

// WithJudgmentRateLimit sets judgments per second per client; 0 disables it.
func WithJudgmentRateLimit(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.judgmentRateLimit = n
		}
	}
}

// WithMaxStandingsLimit caps the standings page size.
func WithMaxStandingsLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxStandings = n
		}
	}
}

// WithPingInterval sets how often live connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithRatingScale sets the logistic spread used for live convergence.
func WithRatingScale(scale float64) Option {
	return func(s *Server) {
		if scale > 0 {
			s.ratingScale = scale
		}
	}
}

// WithExportDir enables POST /collections/{id}/export, writing one file per
// collection under dir. An empty dir leaves the route unregistered.
func WithExportDir(dir string) Option {
	return func(s *Server) {
		s.exportDir = dir
	}
}
