package repository

import (
	"context"
	"sync"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/metrics"
)

// subscription runs onChange on its own goroutine. Offers coalesce: a
// slow consumer only ever sees the latest pending snapshot.
type subscription struct {
	pending chan model.Snapshot
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func startSubscription(ctx context.Context, onChange func(model.Snapshot)) *subscription {
	s := &subscription{
		pending: make(chan model.Snapshot, 1),
		done:    make(chan struct{}),
	}
	metrics.AddStoreSubscriptions(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.AddStoreSubscriptions(-1)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case snap := <-s.pending:
				onChange(snap)
			}
		}
	}()
	return s
}

func (s *subscription) offer(snap model.Snapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.pending <- snap:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

// stop ends delivery. It is safe to call more than once and from inside
// onChange.
func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// wait blocks until the delivery goroutine has exited.
func (s *subscription) wait() { s.wg.Wait() }

// hub fans snapshots out to the subscriptions of each collection.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscription]struct{})}
}

func (h *hub) add(ctx context.Context, collection string, onChange func(model.Snapshot)) (*subscription, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrClosed
	}
	sub := startSubscription(ctx, onChange)
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscription]struct{})
	}
	h.subs[collection][sub] = struct{}{}

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subs[collection], sub)
		if len(h.subs[collection]) == 0 {
			delete(h.subs, collection)
		}
		h.mu.Unlock()
		sub.stop()
	}
	return sub, unsubscribe, nil
}

func (h *hub) publish(collection string, snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[collection] {
		sub.offer(snap)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[*subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, subs := range all {
		for sub := range subs {
			sub.stop()
			sub.wait()
		}
	}
}
