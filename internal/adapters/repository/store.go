// Package repository implements the rating store contract and its backends.
package repository

import (
	"context"

	"github.com/okian/elorank/internal/domain/model"
)

// Store persists per-collection rating records. The same item id has
// independent records in different collections.
type Store interface {
	// Get returns the record for item, or the zero record when it is absent
	// or cannot be decoded.
	Get(ctx context.Context, collection, item string) (model.Record, error)

	// Set replaces the record for record.ItemID. Failures are reported as
	// *model.StorageError.
	Set(ctx context.Context, collection string, record model.Record) error

	// Snapshot returns every stored record of a collection.
	Snapshot(ctx context.Context, collection string) (model.Snapshot, error)

	// Subscribe delivers the current snapshot and then a fresh one after
	// each change, until unsubscribe is called or ctx ends. Deliveries for
	// one subscription are sequential; intermediate snapshots may be skipped.
	Subscribe(ctx context.Context, collection string, onChange func(model.Snapshot)) (unsubscribe func(), err error)

	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)
