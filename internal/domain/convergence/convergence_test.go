package convergence_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/okian/elorank/internal/domain/convergence"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEstimate(t *testing.T) {
	Convey("Given fewer than two records", t, func() {
		So(convergence.Estimate(model.Snapshot{}, rating.DefaultScale), ShouldEqual, 1)
		So(convergence.Estimate(model.NewSnapshot("pl", model.ZeroRecord("a")), rating.DefaultScale), ShouldEqual, 1)
	})

	Convey("Given items that are all unrated", t, func() {
		snap := model.NewSnapshot("pl", model.ZeroRecord("a"), model.ZeroRecord("b"), model.ZeroRecord("c"))

		Convey("Then nothing has converged", func() {
			So(convergence.Estimate(snap, rating.DefaultScale), ShouldAlmostEqual, 0, 1e-9)
		})
	})

	Convey("Given widely separated ratings", t, func() {
		snap := model.NewSnapshot("pl",
			model.Record{ItemID: "a", Rating: 0},
			model.Record{ItemID: "b", Rating: 3000},
			model.Record{ItemID: "c", Rating: 6000},
		)

		Convey("Then convergence approaches one", func() {
			So(convergence.Estimate(snap, rating.DefaultScale), ShouldBeGreaterThan, 0.99)
		})
	})

	Convey("Given random snapshots", t, func() {
		r := rand.New(rand.NewPCG(9, 9))

		Convey("Then the estimate stays within [0,1]", func() {
			for range 200 {
				recs := make([]model.Record, 2+r.IntN(20))
				for i := range recs {
					recs[i] = model.Record{ItemID: fmt.Sprint(i), Rating: (r.Float64() - 0.5) * 5000}
				}
				c := convergence.Estimate(model.NewSnapshot("pl", recs...), rating.DefaultScale)
				So(c, ShouldBeBetweenOrEqual, 0, 1)
			}
		})
	})

	Convey("Given percent rendering", t, func() {
		So(convergence.Percent(0), ShouldEqual, 0)
		So(convergence.Percent(0.456), ShouldEqual, 46)
		So(convergence.Percent(1), ShouldEqual, 100)
	})
}
