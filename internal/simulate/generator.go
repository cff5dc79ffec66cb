package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
)

// generateItems draws n items with normally distributed hidden strengths.
func generateItems(r *rand.Rand, collection string, n int, spread float64) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID:       fmt.Sprintf("%s-item-%03d", collection, i),
			Strength: r.NormFloat64() * spread,
		}
	}
	return items
}

// judge decides a matchup the way a noisy listener with the given hidden
// strengths would. Draws within tieBand around the expected score are ties.
func judge(r *rand.Rand, baseline, candidate, scale, tieBand float64) model.Outcome {
	p := rating.WinProbability(baseline, candidate, scale)
	u := r.Float64()
	switch {
	case u < p-tieBand/2:
		return model.OutcomeBaseline
	case u < p+tieBand/2:
		return model.OutcomeTie
	default:
		return model.OutcomeCandidate
	}
}
