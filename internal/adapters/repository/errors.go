package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrClosed         = errors.New("rating store closed")
	ErrUnknownBackend = errors.New("unknown rating store backend")
)
