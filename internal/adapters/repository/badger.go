package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
)

// badgerMarkerRetry is how often Subscribe rewrites its marker while the
// change feed is still registering.
const badgerMarkerRetry = 10 * time.Millisecond

// BadgerStore keeps records under "r\x00<collection>\x00<item>" as JSON.
type BadgerStore struct {
	db  *badger.DB
	log logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenBadgerStore opens (or creates) a badger database at path. An empty
// path opens an in-memory database.
func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	o := newOptions(opts)
	bopts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", path, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BadgerStore{db: db, log: o.log, ctx: ctx, cancel: cancel}, nil
}

func badgerPrefix(collection string) []byte {
	return []byte("r\x00" + collection + "\x00")
}

// badgerMarkerKey lives outside the record prefix so snapshots never see it.
func badgerMarkerKey(collection, token string) []byte {
	return []byte("m\x00" + collection + "\x00" + token)
}

func badgerKey(collection, item string) []byte {
	return append(badgerPrefix(collection), item...)
}

func (s *BadgerStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(badgerKey(collection, item))
		if err != nil {
			return err
		}
		raw, err = it.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.ZeroRecord(item), nil
	}
	if err != nil {
		return model.Record{}, model.NewStorageError("get", collection, item, err)
	}
	return decodeRecord(ctx, s.log, BackendBadger, collection, item, raw), nil
}

func (s *BadgerStore) Set(_ context.Context, collection string, record model.Record) error {
	buf, err := encodeRecord(record)
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(collection, record.ItemID), buf)
	})
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	return nil
}

func (s *BadgerStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	prefix := badgerPrefix(collection)
	var recs []model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			recs = append(recs, decodeRecord(ctx, s.log, BackendBadger, collection, id, raw))
		}
		return nil
	})
	if err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	return model.NewSnapshot(collection, recs...), nil
}

// Subscribe watches the collection prefix with badger's change feed and
// reloads the snapshot on every batch of record changes. It returns once
// the feed is registered, so any later write is delivered.
func (s *BadgerStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(s.ctx, cancel)
	sub := startSubscription(subCtx, onChange)
	stop := func() {
		stopOnClose()
		cancel()
		sub.stop()
	}

	records := badgerPrefix(collection)
	marker := badgerMarkerKey(collection, uuid.NewString())
	ready := make(chan struct{})
	ended := make(chan error, 1)
	var once sync.Once

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			changed := false
			for _, kv := range kvs.GetKv() {
				switch {
				case bytes.Equal(kv.GetKey(), marker):
					once.Do(func() { close(ready) })
				case bytes.HasPrefix(kv.GetKey(), records):
					changed = true
				}
			}
			if !changed {
				return nil
			}
			snap, err := s.Snapshot(subCtx, collection)
			if err != nil {
				s.log.Warn(subCtx, "reload after change failed", logger.String("collection", collection), logger.Error(err))
				return nil
			}
			sub.offer(snap)
			return nil
		}, []pb.Match{{Prefix: records}, {Prefix: marker}})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error(subCtx, "badger subscription ended", logger.String("collection", collection), logger.Error(err))
		}
		ended <- err
	}()

	if err := s.awaitFeed(subCtx, marker, ready, ended); err != nil {
		stop()
		return nil, model.NewStorageError("subscribe", collection, "", err)
	}

	snap, err := s.Snapshot(ctx, collection)
	if err != nil {
		stop()
		return nil, err
	}
	sub.offer(snap)

	return stop, nil
}

// awaitFeed writes marker until the change feed reports it back, then
// removes it.
func (s *BadgerStore) awaitFeed(ctx context.Context, marker []byte, ready <-chan struct{}, ended <-chan error) error {
	ticker := time.NewTicker(badgerMarkerRetry)
	defer ticker.Stop()
	for {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(marker, nil)
		}); err != nil {
			return err
		}
		select {
		case <-ready:
			return s.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(marker)
			})
		case err := <-ended:
			if err == nil {
				err = ErrClosed
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *BadgerStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.db.Close()
}
