// Package convergence estimates how settled a collection's ordering is.
package convergence

import (
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
)

// Estimate returns one minus the mean pairwise entropy of the snapshot's
// records, a value in [0,1]. Fewer than two records are fully converged.
func Estimate(snap model.Snapshot, scale float64) float64 {
	recs := snap.Records()
	n := len(recs)
	if n < 2 {
		return 1
	}

	var sum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += rating.Entropy(rating.WinProbability(recs[i].Rating, recs[j].Rating, scale))
			pairs++
		}
	}

	c := 1 - sum/float64(pairs)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Percent renders a convergence value as a whole percentage.
func Percent(c float64) int {
	return int(c*100 + 0.5)
}
