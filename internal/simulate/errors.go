package simulate

import "errors"

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid simulation config")

	// ErrUnexpectedStatus is returned when the service answers with an unexpected HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected status")
)
