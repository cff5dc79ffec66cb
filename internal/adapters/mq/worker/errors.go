package worker

import "errors"

// Sentinel kinds for worker pool errors.
var (
	ErrBackpressure = errors.New("judgment queue full, retry later")
	ErrStopped      = errors.New("worker pool stopped")

	// ErrAbandoned wraps the context error when the submitter stopped
	// waiting after the judgment was queued. The judgment is still applied.
	ErrAbandoned = errors.New("stopped waiting for writer")
)
