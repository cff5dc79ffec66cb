package repository

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

// BreakerConfig configures the circuit breaker around a remote store.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	MaxRequests      uint32
}

// BreakerStore fails fast while the wrapped store keeps failing. An open
// breaker surfaces as a *model.StorageError so callers treat it like any
// other retryable store failure.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a consecutive-failure circuit breaker.
func NewBreakerStore(inner Store, cfg BreakerConfig, log logger.Logger) *BreakerStore {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateStoreBreakerState(name, int(to))
			log.Warn(context.Background(), "rating store breaker state changed",
				logger.String("backend", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}
	metrics.UpdateStoreBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the breaker state name: closed, half-open or open.
func (b *BreakerStore) State() string { return b.cb.State().String() }

func (b *BreakerStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Get(ctx, collection, item)
	})
	if err != nil {
		return model.Record{}, breakerError("get", collection, item, err)
	}
	return v.(model.Record), nil
}

func (b *BreakerStore) Set(ctx context.Context, collection string, record model.Record) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Set(ctx, collection, record)
	})
	if err != nil {
		return breakerError("set", collection, record.ItemID, err)
	}
	return nil
}

func (b *BreakerStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Snapshot(ctx, collection)
	})
	if err != nil {
		return model.Snapshot{}, breakerError("snapshot", collection, "", err)
	}
	return v.(model.Snapshot), nil
}

// Subscribe is passed through; subscriptions manage their own reconnects.
func (b *BreakerStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	return b.inner.Subscribe(ctx, collection, onChange)
}

func (b *BreakerStore) Close() error { return b.inner.Close() }

func breakerError(op, collection, item string, err error) error {
	if errors.Is(err, model.ErrStorage) {
		return err
	}
	return model.NewStorageError(op, collection, item, err)
}
