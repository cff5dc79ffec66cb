package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")

	// ErrUnknownCollection is returned when no item pool is registered for a collection.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownItem is returned when a judgment or lookup names an item outside the pool.
	ErrUnknownItem = errors.New("item not in collection")

	// ErrInvalidCollection is returned for an empty collection id.
	ErrInvalidCollection = errors.New("invalid collection id")

	// ErrDuplicateJudgment is returned when a judgment id was already applied.
	ErrDuplicateJudgment = errors.New("duplicate judgment")
)
