package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/elorank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSnapshot(t *testing.T) {
	Convey("Given a snapshot with two records", t, func() {
		snap := model.NewSnapshot("pl",
			model.Record{ItemID: "b", Rating: 10, Observations: 2},
			model.Record{ItemID: "a", Rating: -5, Observations: 1},
		)

		Convey("Then unknown ids read as zero records", func() {
			So(snap.Get("zzz"), ShouldResemble, model.Record{ItemID: "zzz"})
			So(snap.Has("zzz"), ShouldBeFalse)
		})

		Convey("Then records come back ordered by id", func() {
			want := []model.Record{
				{ItemID: "a", Rating: -5, Observations: 1},
				{ItemID: "b", Rating: 10, Observations: 2},
			}
			So(cmp.Diff(want, snap.Records()), ShouldBeEmpty)
			So(snap.IDs(), ShouldResemble, []string{"a", "b"})
			So(snap.Collection(), ShouldEqual, "pl")
		})

		Convey("When a record is replaced with With", func() {
			next := snap.With(model.Record{ItemID: "a", Rating: 1, Observations: 2})

			Convey("Then the original is untouched", func() {
				So(snap.Get("a").Rating, ShouldEqual, -5)
				So(next.Get("a").Rating, ShouldEqual, 1)
				So(next.Len(), ShouldEqual, 2)
			})
		})

		Convey("When restricted to a pool", func() {
			pool := snap.Restrict([]string{"a", "c"})

			Convey("Then only pool items remain, unrated ones as zero records", func() {
				So(pool.Len(), ShouldEqual, 2)
				So(pool.Has("b"), ShouldBeFalse)
				So(pool.Get("c"), ShouldResemble, model.ZeroRecord("c"))
			})
		})
	})

	Convey("Given the zero snapshot", t, func() {
		var snap model.Snapshot
		So(snap.Len(), ShouldEqual, 0)
		So(snap.Get("x").Observations, ShouldEqual, 0)
		So(snap.With(model.ZeroRecord("x")).Len(), ShouldEqual, 1)
	})
}

func TestOutcome(t *testing.T) {
	Convey("Given outcome strings", t, func() {
		for in, want := range map[string]model.Outcome{
			"baseline":   model.OutcomeBaseline,
			" Candidate": model.OutcomeCandidate,
			"TIE":        model.OutcomeTie,
		} {
			got, err := model.ParseOutcome(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
			So(got.Valid(), ShouldBeTrue)
		}

		_, err := model.ParseOutcome("draw")
		So(errors.Is(err, model.ErrInvalidOutcome), ShouldBeTrue)
		So(model.Outcome("draw").Valid(), ShouldBeFalse)
	})

	Convey("Given each outcome's scores", t, func() {
		b, c := model.OutcomeBaseline.Scores()
		So([]float64{b, c}, ShouldResemble, []float64{1, 0})
		b, c = model.OutcomeCandidate.Scores()
		So([]float64{b, c}, ShouldResemble, []float64{0, 1})
		b, c = model.OutcomeTie.Scores()
		So([]float64{b, c}, ShouldResemble, []float64{0.5, 0.5})
	})
}

func TestStorageError(t *testing.T) {
	Convey("Given a storage error", t, func() {
		cause := context.DeadlineExceeded
		err := error(model.NewStorageError("set", "pl", "song-1", cause))

		Convey("Then it matches ErrStorage and its cause", func() {
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "pl/song-1")
		})

		Convey("Then it is retryable", func() {
			var se *model.StorageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Retryable(), ShouldBeTrue)
			So(se.Op, ShouldEqual, "set")
		})
	})
}
