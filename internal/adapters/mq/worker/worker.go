// Package worker runs the serialized collection writers. Every judgment for
// a collection is applied by the same goroutine, so read-modify-write cycles
// for one collection never interleave within the process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/elorank/internal/adapters/mq/queue"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

// poolShutdownTimeout bounds how long Shutdown waits for writers to drain.
const poolShutdownTimeout = 30 * time.Second

// Applier performs the read-modify-write cycle for one judgment.
type Applier interface {
	Apply(ctx context.Context, j model.Judgment) (rating.Result, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue() <-chan queue.Job
}

// Worker processes jobs from its own queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is
	// closed and drained.
	Run(ctx context.Context)

	// Shutdown waits for the worker to stop.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		applier: applier,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, job)
		}
	}
}

// Shutdown waits for the worker to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process applies one job and replies. The submitter may have stopped
// waiting; the reply channel is buffered so this never blocks.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	res, err := w.applier.Apply(ctx, job.Judgment)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "judgment failed",
			logger.String("judgment_id", job.Judgment.ID),
			logger.String("collection", job.Judgment.Collection),
			logger.Error(err),
		)
	}
	job.Reply <- queue.Reply{Result: res, Err: err}
}

// Pool owns one queue and one worker per shard and routes each collection
// to a fixed shard.
type Pool struct {
	workers []*InMemoryWorker
	queues  []*queue.InMemoryQueue

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// NewPool creates workerCount writers sharing queueSize slots evenly.
func NewPool(workerCount, queueSize int, applier Applier, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	perWorker := max(queueSize/workerCount, 1)

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queues:  make([]*queue.InMemoryQueue, workerCount),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workerCount; i++ {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(perWorker))
		p.workers[i] = NewInMemoryWorker(p.queues[i], applier,
			WithName("writer-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateQueueCapacity(perWorker * workerCount)
	metrics.UpdateQueueSize(0)
	return p
}

// Start starts all workers in the pool. Cancelling ctx does not stop
// them; call Shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	// Writers outlive the caller's context; Shutdown drains and stops them.
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runMetricsUpdater(ctx)
	}()
}

func (p *Pool) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(p.Len())
		}
	}
}

// shard maps a collection to a writer index.
func (p *Pool) shard(collection string) int {
	return int(xxhash.Sum64String(collection) % uint64(len(p.workers)))
}

// Submit hands a judgment to its collection's writer and waits for the
// result. Cancelling ctx abandons the wait only; the writer still applies
// the judgment.
func (p *Pool) Submit(ctx context.Context, j model.Judgment) (rating.Result, error) {
	job := queue.NewJob(j)
	if err := p.queues[p.shard(j.Collection)].Enqueue(ctx, job); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			return rating.Result{}, ErrBackpressure
		case errors.Is(err, queue.ErrQueueClosed):
			return rating.Result{}, ErrStopped
		default:
			return rating.Result{}, err
		}
	}

	select {
	case reply := <-job.Reply:
		return reply.Result, reply.Err
	case <-ctx.Done():
		return rating.Result{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
	}
}

// Len returns the number of judgments waiting across all writers.
func (p *Pool) Len() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Size returns the number of writers.
func (p *Pool) Size() int { return len(p.workers) }

// Shutdown stops accepting judgments, lets writers drain what is queued,
// and waits for them to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	for _, q := range p.queues {
		_ = q.Close()
	}
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "writer shutdown timed out", logger.Int("writer_id", i))
			errs = append(errs, err)
		}
	}
	// Stops the metrics updater, and any writer that did not drain in time.
	p.cancel()
	p.wg.Wait()
	return errors.Join(errs...)
}
