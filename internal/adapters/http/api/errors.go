package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/elorank/internal/adapters/mq/worker"
	service "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeds maximum")
	ErrRateLimited   = errors.New("too many judgments, slow down")
)

// retryAfterSeconds is advertised on retryable failures.
const retryAfterSeconds = "1"

// writeServiceError maps a service error to its status code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidCollection),
		errors.Is(err, service.ErrUnknownItem),
		errors.Is(err, rating.ErrInvalidMatchup),
		errors.Is(err, rating.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, worker.ErrBackpressure):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, worker.ErrAbandoned), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, model.ErrStorage):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err)
	case errors.Is(err, worker.ErrStopped), errors.Is(err, service.ErrNotStarted):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
