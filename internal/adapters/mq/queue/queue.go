// Package queue holds the bounded in-memory judgment queues that feed the
// collection writers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	"github.com/okian/elorank/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Reply carries a writer's answer back to the submitter.
type Reply struct {
	Result rating.Result
	Err    error
}

// Job is one judgment waiting for its collection writer.
type Job struct {
	Judgment model.Judgment
	Enqueued time.Time
	// Reply is buffered (capacity 1) so the writer never blocks on a
	// submitter that stopped waiting.
	Reply chan Reply
}

// NewJob wraps a judgment with a fresh reply channel.
func NewJob(j model.Judgment) Job {
	return Job{Judgment: j, Enqueued: time.Now(), Reply: make(chan Reply, 1)}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job without blocking. It returns ErrQueueFull when the
	// queue is at capacity and ErrQueueClosed after Close.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue returns the channel jobs are read from. It is closed by Close
	// once the remaining jobs are drained.
	Dequeue() <-chan Job

	// Len returns the current number of queued jobs.
	Len() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	default:
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		return nil
	default:
		metrics.RecordQueueEnqueueError("full")
		return ErrQueueFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Capacity returns the maximum number of queued jobs.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting jobs. Jobs already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
