package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/okian/elorank/internal/domain/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// SQLiteStore keeps records in a single ratings table.
type SQLiteStore struct {
	db     *sql.DB
	poller *poller
}

// OpenSQLiteStore opens the database at path in WAL mode and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}
	// Pragmas go in the DSN so they apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	ddl, err := schemaFS.ReadFile("schema/sqlite.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db, poller: newPoller(o.pollInterval, o.log)}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, item string) (model.Record, error) {
	r := model.ZeroRecord(item)
	err := s.db.QueryRowContext(ctx,
		`SELECT rating, observations FROM ratings WHERE collection = ? AND item_id = ?`,
		collection, item).Scan(&r.Rating, &r.Observations)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ZeroRecord(item), nil
	}
	if err != nil {
		return model.Record{}, model.NewStorageError("get", collection, item, err)
	}
	return r, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection string, record model.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (collection, item_id, rating, observations)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, item_id) DO UPDATE
		  SET rating = excluded.rating,
		      observations = excluded.observations,
		      updated_at = CURRENT_TIMESTAMP`,
		collection, record.ItemID, record.Rating, record.Observations)
	if err != nil {
		return model.NewStorageError("set", collection, record.ItemID, err)
	}
	return nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context, collection string) (model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, rating, observations FROM ratings WHERE collection = ?`, collection)
	if err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.Record
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.ItemID, &r.Rating, &r.Observations); err != nil {
			return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, model.NewStorageError("snapshot", collection, "", err)
	}
	return model.NewSnapshot(collection, recs...), nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (func(), error) {
	return s.poller.subscribe(ctx, collection, s.Snapshot, onChange)
}

func (s *SQLiteStore) Close() error {
	s.poller.close()
	return s.db.Close()
}
