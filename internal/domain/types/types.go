// Package types contains common types used across the application
package types

import (
	"sort"

	"github.com/okian/elorank/internal/domain/model"
)

// Standing is one row of a collection's ordered ratings.
type Standing struct {
	Rank         int     `json:"rank"`
	ItemID       string  `json:"item_id"`
	Rating       float64 `json:"rating"`
	Observations int     `json:"observations"`
}

// BuildStandings orders records by rating (descending) and item id
// (ascending) and assigns dense ranks: equal ratings share a rank and the
// next distinct rating takes the following one.
func BuildStandings(records []model.Record) []Standing {
	out := make([]Standing, len(records))
	for i, r := range records {
		out[i] = Standing{ItemID: r.ItemID, Rating: r.Rating, Observations: r.Observations}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ItemID < out[j].ItemID
	})
	assignRanksWithTies(out)
	return out
}

func assignRanksWithTies(entries []Standing) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Rating != entries[i-1].Rating {
			rank++
		}
		entries[i].Rank = rank
	}
}
