// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	workerpool "github.com/okian/elorank/internal/adapters/mq/worker"
	"github.com/okian/elorank/internal/adapters/repository"
	"github.com/okian/elorank/internal/config"
	"github.com/okian/elorank/internal/domain/convergence"
	"github.com/okian/elorank/internal/domain/dedupe"
	"github.com/okian/elorank/internal/domain/matchmaker"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	"github.com/okian/elorank/internal/domain/types"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

// JudgeResult is the reply to a submitted judgment.
type JudgeResult struct {
	JudgmentID string        `json:"judgment_id"`
	Duplicate  bool          `json:"duplicate"`
	Result     rating.Result `json:"result"`
}

// Service implements the API dependencies for the rating engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	updater    *rating.Updater
	matchmaker *matchmaker.Matchmaker
	deduper    dedupe.Deduper
	workerPool *workerpool.Pool
	loads      singleflight.Group

	// Item pools by collection, first occurrence order.
	pools map[string][]string

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	judgmentTimeout time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the rating store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithUpdater sets the rating updater.
func WithUpdater(u *rating.Updater) Option {
	return func(s *Service) {
		if u != nil {
			s.updater = u
		}
	}
}

// WithMatchmaker sets the matchmaker.
func WithMatchmaker(m *matchmaker.Matchmaker) Option {
	return func(s *Service) {
		if m != nil {
			s.matchmaker = m
		}
	}
}

// WithWorkerCount sets the number of serialized collection writers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting judgments.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many judgment ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJudgmentTimeout caps how long Judge waits for its writer.
func WithJudgmentTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.judgmentTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OptionsFromConfig translates the engine and pool settings of cfg.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithUpdater(rating.NewUpdater(
			rating.WithScale(cfg.RatingScale),
			rating.WithKFactor(cfg.BaseK, cfg.MinK, cfg.MaxK),
		)),
		WithMatchmaker(matchmaker.New(
			matchmaker.WithScale(cfg.RatingScale),
			matchmaker.WithExplorationRate(cfg.ExplorationRate),
			matchmaker.WithJitter(cfg.JitterMin, cfg.JitterMax),
			matchmaker.WithSeed(cfg.RandomSeed),
		)),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithJudgmentTimeout(cfg.JudgmentTimeout()),
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		pools:           make(map[string][]string),
		workerCount:     runtime.NumCPU(),
		queueSize:       10_000,
		dedupeSize:      100_000,
		judgmentTimeout: 5 * time.Second,
		logger:          nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting rating service...")

	if s.store == nil {
		s.store = repository.Instrument(repository.NewMemoryStore(), repository.BackendMemory)
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.updater == nil {
		s.updater = rating.NewUpdater()
	}
	if s.matchmaker == nil {
		s.matchmaker = matchmaker.New()
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.queueSize, applier{s: s},
		workerpool.WithPoolLogger(s.logger),
	)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop drains queued judgments and closes the store. A later Start begins
// with no registered collections on a fresh in-memory store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	// Mark stopped first so new judgments are refused while the pool drains.
	s.started = false

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing store", logger.Error(err))
		}
	}
	s.store = nil
	s.workerPool = nil
	s.pools = make(map[string][]string)

	s.logger.Info(ctx, "rating service stopped")
}

// RegisterItems replaces the item pool of a collection. Empty ids are dropped
// and repeated ids keep their first position. It returns the pool size.
func (s *Service) RegisterItems(ctx context.Context, collection string, items []string) (int, error) {
	if strings.TrimSpace(collection) == "" {
		return 0, ErrInvalidCollection
	}

	pool := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, id := range items {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0, ErrNotStarted
	}
	s.pools[collection] = pool
	total := len(s.pools)
	s.mu.Unlock()

	metrics.UpdateCollectionItems(collection, len(pool))
	metrics.UpdateCollectionsTotal(total)
	s.logger.Info(ctx, "collection registered",
		logger.String("collection", collection),
		logger.Int("items", len(pool)),
		logger.Int("dropped", len(items)-len(pool)),
	)
	return len(pool), nil
}

// Items returns a copy of a collection's item pool.
func (s *Service) Items(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	pool, ok := s.pools[collection]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return append([]string(nil), pool...), nil
}

// pool returns the registered items and the store, or the reason they are unavailable.
func (s *Service) pool(collection string) ([]string, repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	pool, ok := s.pools[collection]
	if !ok {
		return nil, nil, ErrUnknownCollection
	}
	return pool, s.store, nil
}

// writer returns the registered items with the deduper and worker pool of
// the running session, captured together so a concurrent Stop cannot swap
// them out mid-judgment.
func (s *Service) writer(collection string) ([]string, dedupe.Deduper, *workerpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	pool, ok := s.pools[collection]
	if !ok {
		return nil, nil, nil, ErrUnknownCollection
	}
	return pool, s.deduper, s.workerPool, nil
}

// snapshot loads a collection's records. Concurrent loads of the same
// collection share one store round trip.
func (s *Service) snapshot(ctx context.Context, store repository.Store, collection string) (model.Snapshot, error) {
	v, err, _ := s.loads.Do(collection, func() (any, error) {
		return store.Snapshot(ctx, collection)
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return v.(model.Snapshot), nil
}

// NextMatchup proposes the next pair to judge. It reports false when the
// pool has fewer than two items.
func (s *Service) NextMatchup(ctx context.Context, collection string) (model.Matchup, bool, error) {
	pool, store, err := s.pool(collection)
	if err != nil {
		return model.Matchup{}, false, err
	}
	snap, err := s.snapshot(ctx, store, collection)
	if err != nil {
		return model.Matchup{}, false, err
	}

	m, ok := s.matchmaker.Select(pool, snap)
	if !ok {
		metrics.RecordMatchupUnavailable()
		return model.Matchup{}, false, nil
	}
	m.Collection = collection
	metrics.RecordMatchup(string(m.Branch))
	return m, true, nil
}

// Judge validates a judgment and hands it to the collection's writer. A
// judgment id seen before returns ErrDuplicateJudgment together with a
// result flagged Duplicate. Ids are generated when absent.
func (s *Service) Judge(ctx context.Context, j model.Judgment) (JudgeResult, error) {
	pool, deduper, writers, err := s.writer(j.Collection)
	if err != nil {
		return JudgeResult{}, err
	}
	if !j.Outcome.Valid() {
		metrics.RecordJudgmentError("invalid_outcome")
		return JudgeResult{}, fmt.Errorf("%w: %q", rating.ErrInvalidOutcome, j.Outcome)
	}
	if j.Baseline == j.Candidate {
		metrics.RecordJudgmentError("same_item")
		return JudgeResult{}, rating.ErrInvalidMatchup
	}
	for _, id := range []string{j.Baseline, j.Candidate} {
		if !slices.Contains(pool, id) {
			metrics.RecordJudgmentError("unknown_item")
			return JudgeResult{}, fmt.Errorf("%w: %q", ErrUnknownItem, id)
		}
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if deduper.SeenAndRecord(ctx, j.ID) {
		metrics.RecordJudgmentDuplicate()
		s.logger.Debug(ctx, "duplicate judgment detected, skipping",
			logger.String("judgment_id", j.ID),
			logger.String("collection", j.Collection),
		)
		return JudgeResult{JudgmentID: j.ID, Duplicate: true}, ErrDuplicateJudgment
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.judgmentTimeout)
	defer cancel()

	res, err := writers.Submit(waitCtx, j)
	if err != nil {
		// An abandoned wait still lands, so the id stays recorded.
		if !errors.Is(err, workerpool.ErrAbandoned) {
			deduper.Unrecord(ctx, j.ID)
		}
		metrics.RecordJudgmentError(judgmentErrorReason(err))
		return JudgeResult{JudgmentID: j.ID}, err
	}
	return JudgeResult{JudgmentID: j.ID, Result: res}, nil
}

func judgmentErrorReason(err error) string {
	switch {
	case errors.Is(err, workerpool.ErrBackpressure):
		return "backpressure"
	case errors.Is(err, workerpool.ErrStopped):
		return "stopped"
	case errors.Is(err, model.ErrStorage):
		return "storage"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "other"
	}
}

// applier runs on the collection's writer goroutine.
type applier struct {
	s *Service
}

func (a applier) Apply(ctx context.Context, j model.Judgment) (rating.Result, error) {
	s := a.s
	baseline, err := s.store.Get(ctx, j.Collection, j.Baseline)
	if err != nil {
		return rating.Result{}, err
	}
	candidate, err := s.store.Get(ctx, j.Collection, j.Candidate)
	if err != nil {
		return rating.Result{}, err
	}

	res, err := s.updater.Apply(ctx, s.store, j.Collection, baseline, candidate, j.Outcome)
	if err != nil {
		return res, err
	}

	metrics.RecordJudgment(string(j.Outcome), res.K, res.Baseline.Rating-baseline.Rating)
	s.logger.Debug(ctx, "judgment applied",
		logger.String("judgment_id", j.ID),
		logger.String("collection", j.Collection),
		logger.Float64("k", res.K),
	)
	return res, nil
}

// Convergence returns how settled the collection's ordering is, over its
// pool with unrated items counted at the initial rating.
func (s *Service) Convergence(ctx context.Context, collection string) (float64, error) {
	pool, store, err := s.pool(collection)
	if err != nil {
		return 0, err
	}
	snap, err := s.snapshot(ctx, store, collection)
	if err != nil {
		return 0, err
	}
	c := convergence.Estimate(snap.Restrict(pool), s.updater.Scale())
	metrics.UpdateConvergence(collection, c)
	return c, nil
}

// Standings returns the pool sorted by rating. limit <= 0 returns all items.
func (s *Service) Standings(ctx context.Context, collection string, limit int) ([]types.Standing, error) {
	pool, store, err := s.pool(collection)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, store, collection)
	if err != nil {
		return nil, err
	}
	out := types.BuildStandings(snap.Restrict(pool).Records())
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Record returns the stored record of one pool item.
func (s *Service) Record(ctx context.Context, collection, item string) (model.Record, error) {
	pool, store, err := s.pool(collection)
	if err != nil {
		return model.Record{}, err
	}
	if !slices.Contains(pool, item) {
		return model.Record{}, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}
	return store.Get(ctx, collection, item)
}

// Subscribe streams the collection's pool snapshot after each change. The
// pool is read at delivery time, so re-registered items show up.
func (s *Service) Subscribe(ctx context.Context, collection string, fn func(model.Snapshot)) (func(), error) {
	_, store, err := s.pool(collection)
	if err != nil {
		return nil, err
	}
	return store.Subscribe(ctx, collection, func(snap model.Snapshot) {
		pool, _, err := s.pool(collection)
		if err != nil {
			return
		}
		fn(snap.Restrict(pool))
	})
}

// Export writes the collection's standings to path, creating its
// directory when missing.
func (s *Service) Export(ctx context.Context, collection, path string) (repository.ExportDocument, error) {
	pool, store, err := s.pool(collection)
	if err != nil {
		return repository.ExportDocument{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return repository.ExportDocument{}, fmt.Errorf("create export directory: %w", err)
	}
	doc, err := repository.Export(ctx, store, collection, path, pool...)
	if err != nil {
		return repository.ExportDocument{}, err
	}
	s.logger.Info(ctx, "collection exported",
		logger.String("collection", collection),
		logger.String("path", path),
		logger.Int("items", len(doc.Standings)),
	)
	return doc, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.workerPool.Len()
		items := 0
		for _, p := range s.pools {
			items += len(p)
		}

		stats["queueLength"] = queueLen
		stats["collections"] = len(s.pools)
		stats["items"] = items
		stats["judgmentsRemembered"] = s.deduper.Size()
		if b, ok := s.store.(interface{ Backend() string }); ok {
			stats["storeBackend"] = b.Backend()
		}

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateCollectionsTotal(len(s.pools))
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
