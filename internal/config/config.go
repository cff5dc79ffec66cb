// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Flat snake_case koanf keys, one per field, so env and YAML share names.
//   - New returns the defaults; Load layers file and env on top.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported store backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the rating store: memory, badger, redis, sqlite, postgres.
	StoreBackend string `koanf:"store_backend"`

	BadgerDir     string `koanf:"badger_dir"`
	SQLitePath    string `koanf:"sqlite_path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	PostgresDSN   string `koanf:"postgres_dsn"`

	// StoreTimeoutMS bounds every individual store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// PollIntervalMS drives subscriptions on backends without a change feed.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// BreakerFailureThreshold is the number of consecutive failures that opens
	// the circuit breaker around remote stores.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeoutMS    int `koanf:"breaker_open_timeout_ms"`

	// WorkerCount sets the number of serialized collection writers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the judgment queue across all writers.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many judgment ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// JudgmentTimeoutMS caps how long a request waits for its writer.
	JudgmentTimeoutMS int `koanf:"judgment_timeout_ms"`

	// JudgmentRateLimit is the per-client judgments per second; 0 disables it.
	JudgmentRateLimit int `koanf:"judgment_rate_limit"`

	// ExportDir receives POST /collections/{id}/export files; empty disables the route.
	ExportDir string `koanf:"export_dir"`

	// MaxStandingsLimit caps GET /standings?limit.
	MaxStandingsLimit int `koanf:"max_standings_limit"`

	// Rating engine tuning. Defaults are the classic values.
	RatingScale     float64 `koanf:"rating_scale"`
	ExplorationRate float64 `koanf:"exploration_rate"`
	BaseK           float64 `koanf:"base_k"`
	MinK            float64 `koanf:"min_k"`
	MaxK            float64 `koanf:"max_k"`
	JitterMin       float64 `koanf:"jitter_min"`
	JitterMax       float64 `koanf:"jitter_max"`

	// RandomSeed seeds the matchmaker; 0 seeds from the clock.
	RandomSeed uint64 `koanf:"random_seed"`

	// MetricsEnabled turns the Prometheus recorders on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is the sampling period of queue and system gauges.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StoreBackend:            BackendMemory,
		BadgerDir:               "data/badger",
		SQLitePath:              "data/elorank.db",
		RedisAddr:               "localhost:6379",
		StoreTimeoutMS:          2000,
		PollIntervalMS:          1000,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeoutMS:    10_000,
		WorkerCount:             runtime.NumCPU(),
		QueueSize:               10_000,
		DedupeSize:              100_000,
		JudgmentTimeoutMS:       5000,
		JudgmentRateLimit:       100,
		MaxStandingsLimit:       500,
		ExportDir:               "data/exports",
		RatingScale:             480,
		ExplorationRate:         0.12,
		BaseK:                   32,
		MinK:                    8,
		MaxK:                    64,
		JitterMin:               0.9,
		JitterMax:               1.1,
		MetricsEnabled:          true,
		MetricsRefreshMS:        5000,
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("%w: badger_dir is required for the badger backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.WorkerCount <= 0 || c.QueueSize <= 0 {
		return fmt.Errorf("%w: worker_count and queue_size must be positive", ErrInvalidConfig)
	}
	if c.RatingScale <= 0 {
		return fmt.Errorf("%w: rating_scale must be positive", ErrInvalidConfig)
	}
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		return fmt.Errorf("%w: exploration_rate must be within [0,1]", ErrInvalidConfig)
	}
	if c.BaseK <= 0 {
		return fmt.Errorf("%w: base_k must be positive", ErrInvalidConfig)
	}
	if c.MinK <= 0 || c.MinK > c.MaxK {
		return fmt.Errorf("%w: min_k must be positive and not above max_k", ErrInvalidConfig)
	}
	if c.JitterMin <= 0 || c.JitterMin > c.JitterMax {
		return fmt.Errorf("%w: jitter_min must be positive and not above jitter_max", ErrInvalidConfig)
	}
	if c.MetricsRefreshMS <= 0 {
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	}
	return nil
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration { return ms(c.StoreTimeoutMS) }

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

// BreakerOpenTimeout returns BreakerOpenTimeoutMS as a duration.
func (c *Config) BreakerOpenTimeout() time.Duration { return ms(c.BreakerOpenTimeoutMS) }

// JudgmentTimeout returns JudgmentTimeoutMS as a duration.
func (c *Config) JudgmentTimeout() time.Duration { return ms(c.JudgmentTimeoutMS) }

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration { return ms(c.MetricsRefreshMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
