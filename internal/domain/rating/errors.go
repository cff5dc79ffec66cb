package rating

import (
	"errors"

	"github.com/okian/elorank/internal/domain/model"
)

// Sentinel errors returned by the updater.
var (
	ErrInvalidMatchup = errors.New("invalid matchup: baseline and candidate are the same item")
	ErrInvalidOutcome = model.ErrInvalidOutcome
)
