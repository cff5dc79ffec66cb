package repository

import (
	"context"
	"sync"

	"github.com/okian/elorank/internal/domain/model"
)

// MemoryStore keeps one immutable snapshot per collection and replaces it
// on every write. Readers never block writers for longer than a map lookup.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]model.Snapshot
	closed      bool
	hub         *hub
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]model.Snapshot),
		hub:         newHub(),
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, item string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Record{}, model.NewStorageError("get", collection, item, ErrClosed)
	}
	return s.collections[collection].Get(item), nil
}

func (s *MemoryStore) Set(_ context.Context, collection string, record model.Record) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.NewStorageError("set", collection, record.ItemID, ErrClosed)
	}
	snap, ok := s.collections[collection]
	if !ok {
		snap = model.NewSnapshot(collection)
	}
	snap = snap.With(record)
	s.collections[collection] = snap
	// Publishing under the lock keeps deliveries in write order.
	s.hub.publish(collection, snap)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context, collection string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", ErrClosed)
	}
	if snap, ok := s.collections[collection]; ok {
		return snap, nil
	}
	return model.NewSnapshot(collection), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	// Holding the read lock keeps a concurrent Set from publishing between
	// the initial snapshot and registration.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	sub, unsubscribe, err := s.hub.add(ctx, collection, onChange)
	if err != nil {
		return nil, err
	}
	snap, ok := s.collections[collection]
	if !ok {
		snap = model.NewSnapshot(collection)
	}
	sub.offer(snap)
	return unsubscribe, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.close()
	return nil
}
