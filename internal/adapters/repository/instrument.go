package repository

import (
	"context"
	"time"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/metrics"
)

// InstrumentedStore bounds every call with a timeout and records latency
// and failures per backend and operation.
type InstrumentedStore struct {
	inner   Store
	backend string
	timeout time.Duration
}

// Instrument wraps inner. Only WithTimeout is honoured.
func Instrument(inner Store, backend string, opts ...Option) *InstrumentedStore {
	o := newOptions(opts)
	return &InstrumentedStore{inner: inner, backend: backend, timeout: o.timeout}
}

// Backend returns the wrapped backend name.
func (s *InstrumentedStore) Backend() string { return s.backend }

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(s.backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(s.backend, op)
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	r, err := s.inner.Get(ctx, collection, item)
	s.observe("get", start, err)
	return r, err
}

func (s *InstrumentedStore) Set(ctx context.Context, collection string, record model.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := s.inner.Set(ctx, collection, record)
	s.observe("set", start, err)
	return err
}

func (s *InstrumentedStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	snap, err := s.inner.Snapshot(ctx, collection)
	s.observe("snapshot", start, err)
	return snap, err
}

func (s *InstrumentedStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	return s.inner.Subscribe(ctx, collection, onChange)
}

func (s *InstrumentedStore) Close() error { return s.inner.Close() }
