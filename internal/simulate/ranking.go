package simulate

import (
	"sort"

	"github.com/okian/elorank/internal/domain/types"
)

// spearman returns the rank correlation between the hidden order of items
// and the estimated standings. Items missing from standings rank last.
func spearman(items []Item, standings []types.Standing) float64 {
	n := len(items)
	if n < 2 {
		return 1
	}

	hidden := make([]Item, n)
	copy(hidden, items)
	sort.Slice(hidden, func(i, j int) bool {
		if hidden[i].Strength != hidden[j].Strength {
			return hidden[i].Strength > hidden[j].Strength
		}
		return hidden[i].ID < hidden[j].ID
	})

	estimated := make(map[string]int, len(standings))
	for i, s := range standings {
		estimated[s.ItemID] = i
	}

	var d2 float64
	for i, it := range hidden {
		pos, ok := estimated[it.ID]
		if !ok {
			pos = n - 1
		}
		d := float64(i - pos)
		d2 += d * d
	}
	nf := float64(n)
	return 1 - 6*d2/(nf*(nf*nf-1))
}
