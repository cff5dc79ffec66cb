package repository

import (
	"context"
	"fmt"

	"github.com/okian/elorank/internal/config"
	"github.com/okian/elorank/pkg/logger"
)

// Open creates the store selected by cfg.StoreBackend. Remote backends are
// wrapped in a circuit breaker, and every backend is instrumented.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := []Option{
		WithLogger(log),
		WithTimeout(cfg.StoreTimeout()),
		WithPollInterval(cfg.PollInterval()),
	}
	breaker := func(name string, s Store) Store {
		return NewBreakerStore(s, BreakerConfig{
			Name:             name,
			FailureThreshold: uint32(max(cfg.BreakerFailureThreshold, 1)), //nolint:gosec // bounded config value
			OpenTimeout:      cfg.BreakerOpenTimeout(),
		}, log)
	}

	var (
		s   Store
		err error
	)
	switch cfg.StoreBackend {
	case "", BackendMemory:
		s = NewMemoryStore()
	case BackendBadger:
		s, err = OpenBadgerStore(cfg.BadgerDir, opts...)
	case BackendSQLite:
		s, err = OpenSQLiteStore(ctx, cfg.SQLitePath, opts...)
	case BackendRedis:
		var rs *RedisStore
		rs, err = NewRedisStore(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, opts...)
		if err == nil {
			s = breaker(BackendRedis, rs)
		}
	case BackendPostgres:
		var ps *PostgresStore
		ps, err = OpenPostgresStore(ctx, cfg.PostgresDSN, opts...)
		if err == nil {
			s = breaker(BackendPostgres, ps)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.StoreBackend
	if backend == "" {
		backend = BackendMemory
	}
	log.Info(ctx, "rating store opened", logger.String("backend", backend))
	return Instrument(s, backend, opts...), nil
}
