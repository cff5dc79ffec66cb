package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueFull   = errors.New("judgment queue full")
	ErrQueueClosed = errors.New("judgment queue closed")
)
