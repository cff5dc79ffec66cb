package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// RedisStore keeps one hash per collection (field = item id, value = JSON
// record) and announces writes on a per-collection channel.
type RedisStore struct {
	client *redis.Client
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	o := newOptions(opts)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	o.log.Info(ctx, "connected to redis rating store", logger.String("addr", cfg.Addr), logger.Int("db", cfg.DB))

	sctx, scancel := context.WithCancel(context.Background())
	return &RedisStore{client: client, log: o.log, ctx: sctx, cancel: scancel}, nil
}

func redisHashKey(collection string) string { return "elorank:ratings:" + collection }
func redisChannel(collection string) string { return "elorank:changes:" + collection }

func (s *RedisStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	raw, err := s.client.HGet(ctx, redisHashKey(collection), item).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ZeroRecord(item), nil
	}
	if err != nil {
		return model.Record{}, model.NewStorageError("get", collection, item, err)
	}
	return decodeRecord(ctx, s.log, BackendRedis, collection, item, raw), nil
}

func (s *RedisStore) Set(ctx context.Context, collection string, record model.Record) error {
	buf, err := encodeRecord(record)
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisHashKey(collection), record.ItemID, buf)
		p.Publish(ctx, redisChannel(collection), record.ItemID)
		return nil
	})
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	return nil
}

func (s *RedisStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, redisHashKey(collection)).Result()
	if err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	recs := make([]model.Record, 0, len(fields))
	for item, raw := range fields {
		recs = append(recs, decodeRecord(ctx, s.log, BackendRedis, collection, item, []byte(raw)))
	}
	return model.NewSnapshot(collection, recs...), nil
}

// Subscribe listens on the collection channel and reloads the hash on
// every message.
func (s *RedisStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	ps := s.client.Subscribe(ctx, redisChannel(collection))
	// Wait for the subscription to be confirmed so no write is missed
	// between the initial snapshot and the first message.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, model.NewStorageError("subscribe", collection, "", err)
	}

	snap, err := s.Snapshot(ctx, collection)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(s.ctx, cancel)
	sub := startSubscription(subCtx, onChange)
	sub.offer(snap)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = ps.Close() }()
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				next, err := s.Snapshot(subCtx, collection)
				if err != nil {
					s.log.Warn(subCtx, "reload after change failed", logger.String("collection", collection), logger.Error(err))
					continue
				}
				sub.offer(next)
			}
		}
	}()

	return func() {
		stopOnClose()
		cancel()
		sub.stop()
	}, nil
}

func (s *RedisStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.client.Close()
}
