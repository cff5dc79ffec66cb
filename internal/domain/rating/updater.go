package rating

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/elorank/internal/domain/model"
)

// RecordWriter persists one record. repository.Store satisfies it.
type RecordWriter interface {
	Set(ctx context.Context, collection string, record model.Record) error
}

// Result is the outcome of rating one judgment.
type Result struct {
	Baseline          model.Record  `json:"baseline"`
	Candidate         model.Record  `json:"candidate"`
	Outcome           model.Outcome `json:"outcome"`
	K                 float64       `json:"k"`
	ExpectedBaseline  float64       `json:"expected_baseline"`
	ExpectedCandidate float64       `json:"expected_candidate"`
	Uncertainty       float64       `json:"uncertainty"`
	Information       float64       `json:"information"`
}

// Updater applies the variance-aware, information-weighted Elo rule.
// It holds no mutable state and is safe for concurrent use.
type Updater struct {
	scale float64
	baseK float64
	minK  float64
	maxK  float64
}

// NewUpdater creates an Updater with the classic defaults.
func NewUpdater(opts ...Option) *Updater {
	u := &Updater{
		scale: DefaultScale,
		baseK: DefaultBaseK,
		minK:  DefaultMinK,
		maxK:  DefaultMaxK,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Scale returns the logistic spread the updater uses.
func (u *Updater) Scale() float64 { return u.scale }

// Compute returns the updated records for a judgment without persisting them.
func (u *Updater) Compute(baseline, candidate model.Record, outcome model.Outcome) (Result, error) {
	if baseline.ItemID == candidate.ItemID {
		return Result{}, ErrInvalidMatchup
	}
	if !outcome.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	pB := WinProbability(baseline.Rating, candidate.Rating, u.scale)
	pC := WinProbability(candidate.Rating, baseline.Rating, u.scale)
	sB, sC := outcome.Scores()

	// Fewer observations mean a larger step.
	uncertainty := 0.5 * (1/math.Sqrt(1+float64(baseline.Observations)) + 1/math.Sqrt(1+float64(candidate.Observations)))

	// A decisive result between even items is most informative; a tie is
	// most informative when one side was the clear favourite.
	var info float64
	if outcome == model.OutcomeTie {
		info = 2 * math.Abs(0.5-pB)
	} else {
		info = Entropy(pB)
	}

	k := clamp(u.baseK*(0.75+1.75*uncertainty)*(0.75+0.75*info), u.minK, u.maxK)

	return Result{
		Baseline: model.Record{
			ItemID:       baseline.ItemID,
			Rating:       baseline.Rating + (sB-pB)*k,
			Observations: baseline.Observations + 1,
		},
		Candidate: model.Record{
			ItemID:       candidate.ItemID,
			Rating:       candidate.Rating + (sC-pC)*k,
			Observations: candidate.Observations + 1,
		},
		Outcome:           outcome,
		K:                 k,
		ExpectedBaseline:  pB,
		ExpectedCandidate: pC,
		Uncertainty:       uncertainty,
		Information:       info,
	}, nil
}

// Apply computes the judgment and writes both records through w. Each
// record is written independently; a failed write is reported as a
// *model.StorageError and never retried here. When both writes fail the
// errors are joined.
func (u *Updater) Apply(ctx context.Context, w RecordWriter, collection string, baseline, candidate model.Record, outcome model.Outcome) (Result, error) {
	res, err := u.Compute(baseline, candidate, outcome)
	if err != nil {
		return Result{}, err
	}

	errB := write(ctx, w, collection, res.Baseline)
	errC := write(ctx, w, collection, res.Candidate)
	if err := errors.Join(errB, errC); err != nil {
		return res, err
	}
	return res, nil
}

func write(ctx context.Context, w RecordWriter, collection string, r model.Record) error {
	err := w.Set(ctx, collection, r)
	if err == nil {
		return nil
	}
	var se *model.StorageError
	if errors.As(err, &se) {
		return err
	}
	return model.NewStorageError("set", collection, r.ItemID, err)
}
