package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/elorank/internal/domain/model"
)

// PostgresStore keeps records in a ratings table through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	poller *poller
}

// OpenPostgresStore connects to dsn and applies the schema.
func OpenPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	ddl, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &PostgresStore{pool: pool, poller: newPoller(o.pollInterval, o.log)}, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	r := model.ZeroRecord(item)
	err := s.pool.QueryRow(ctx,
		`SELECT rating, observations FROM ratings WHERE collection = $1 AND item_id = $2`,
		collection, item).Scan(&r.Rating, &r.Observations)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ZeroRecord(item), nil
	}
	if err != nil {
		return model.Record{}, model.NewStorageError("get", collection, item, err)
	}
	return r, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection string, record model.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratings (collection, item_id, rating, observations)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, item_id) DO UPDATE
		  SET rating = EXCLUDED.rating,
		      observations = EXCLUDED.observations,
		      updated_at = now()`,
		collection, record.ItemID, record.Rating, record.Observations)
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, rating, observations FROM ratings WHERE collection = $1`, collection)
	if err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Record, error) {
		var r model.Record
		err := row.Scan(&r.ItemID, &r.Rating, &r.Observations)
		return r, err
	})
	if err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	return model.NewSnapshot(collection, recs...), nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	return s.poller.subscribe(ctx, collection, s.Snapshot, onChange)
}

func (s *PostgresStore) Close() error {
	s.poller.close()
	s.pool.Close()
	return nil
}
