package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/elorank/internal/domain/model"
)

func judgment(id string) model.Judgment {
	return model.Judgment{ID: id, Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeTie}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if err := q.Enqueue(ctx, NewJob(judgment("j1"))); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	job := <-q.Dequeue()
	if job.Judgment.ID != "j1" {
		t.Errorf("expected j1, got %v", job.Judgment.ID)
	}
	if cap(job.Reply) != 1 {
		t.Errorf("expected buffered reply channel, got cap %d", cap(job.Reply))
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"j1", "j2"} {
		if err := q.Enqueue(ctx, NewJob(judgment(id))); err != nil {
			t.Fatalf("expected enqueue to succeed: %v", err)
		}
	}
	if err := q.Enqueue(ctx, NewJob(judgment("j3"))); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, NewJob(judgment("j1"))); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := q.Enqueue(ctx, NewJob(judgment(fmt.Sprintf("j-%d-%d", id, j)))); err != nil {
					t.Errorf("enqueue failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if l := q.Len(); l != 1000 {
		t.Errorf("expected length 1000, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, NewJob(judgment("j1"))); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if err := q.Enqueue(ctx, NewJob(judgment("j2"))); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}

	// Jobs queued before Close are still drained.
	var drained []string
	for job := range q.Dequeue() {
		drained = append(drained, job.Judgment.ID)
	}
	if len(drained) != 1 || drained[0] != "j1" {
		t.Errorf("expected [j1] drained, got %v", drained)
	}
}
