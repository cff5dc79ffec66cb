package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the rating domain.
var (
	ErrStorage        = errors.New("rating store failure")
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// StorageError reports a failed read or write against the rating store.
// Callers may retry; the engine never does.
type StorageError struct {
	Op         string
	Collection string
	Item       string
	Err        error
}

// NewStorageError wraps err as a StorageError.
func NewStorageError(op, collection, item string, err error) *StorageError {
	return &StorageError{Op: op, Collection: collection, Item: item, Err: err}
}

func (e *StorageError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("rating store %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("rating store %s %s/%s: %v", e.Op, e.Collection, e.Item, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Retryable is always true: store failures are transient from the engine's view.
func (e *StorageError) Retryable() bool { return true }
