package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/elorank/internal/domain/model"
	types "github.com/okian/elorank/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildStandings(t *testing.T) {
	Convey("Given records with a tie", t, func() {
		recs := []model.Record{
			{ItemID: "c", Rating: -10, Observations: 4},
			{ItemID: "b", Rating: 25, Observations: 3},
			{ItemID: "a", Rating: 25, Observations: 2},
			{ItemID: "d", Rating: 0},
		}

		Convey("When building standings", func() {
			got := types.BuildStandings(recs)

			Convey("Then they are sorted by rating then id with dense ranks", func() {
				want := []types.Standing{
					{Rank: 1, ItemID: "a", Rating: 25, Observations: 2},
					{Rank: 1, ItemID: "b", Rating: 25, Observations: 3},
					{Rank: 2, ItemID: "d", Rating: 0},
					{Rank: 3, ItemID: "c", Rating: -10, Observations: 4},
				}
				So(cmp.Diff(want, got), ShouldBeEmpty)
			})

			Convey("Then the input is not reordered", func() {
				So(recs[0].ItemID, ShouldEqual, "c")
			})
		})
	})

	Convey("Given no records", t, func() {
		So(types.BuildStandings(nil), ShouldBeEmpty)
	})
}
