package repository

import (
	"time"

	"github.com/okian/elorank/pkg/logger"
)

// Default store configuration constants.
const (
	defaultTimeout      = 2 * time.Second
	defaultPollInterval = time.Second
)

type options struct {
	log          logger.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		log:          logger.Nop(),
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger used for corrupt reads and subscription errors.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTimeout bounds each store call made through Instrument.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPollInterval sets how often polling backends check for changes.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}
