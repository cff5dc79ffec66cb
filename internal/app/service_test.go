package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/adapters/repository"
	"github.com/okian/elorank/internal/config"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
	"github.com/okian/elorank/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func startService(opts ...service.Option) (*service.Service, context.Context) {
	svc := service.New(opts...)
	ctx := context.Background()
	So(svc.Start(ctx), ShouldBeNil)
	return svc, ctx
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a new service built from configuration", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 3
		cfg.RandomSeed = 42
		svc := service.New(service.OptionsFromConfig(cfg)...)

		Convey("Then the pool settings are applied", func() {
			So(svc.GetStats()["workerCount"], ShouldEqual, 3)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When it is used before Start", func() {
			_, err := svc.RegisterItems(context.Background(), "pl", []string{"a", "b"})

			Convey("Then it reports that it is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started, stopped and started again", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
			So(err, ShouldBeNil)
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the second run starts without collections", func() {
				_, err := svc.Items("pl")
				So(errors.Is(err, service.ErrUnknownCollection), ShouldBeTrue)
				So(svc.GetStats()["storeBackend"], ShouldEqual, repository.BackendMemory)
			})
		})
	})
}

func TestService_RegisterItems(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx := startService()
		defer svc.Stop()

		Convey("When registering a pool with blanks and repeats", func() {
			n, err := svc.RegisterItems(ctx, "pl", []string{"a", "", "b", "a", " c ", "b"})

			Convey("Then the first occurrences are kept in order", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)
				items, err := svc.Items("pl")
				So(err, ShouldBeNil)
				So(items, ShouldResemble, []string{"a", "b", "c"})
			})
		})

		Convey("When the collection id is blank", func() {
			_, err := svc.RegisterItems(ctx, "  ", []string{"a"})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidCollection), ShouldBeTrue)
			})
		})

		Convey("When asking for a collection that was never registered", func() {
			_, _, err := svc.NextMatchup(ctx, "missing")

			Convey("Then it is unknown", func() {
				So(errors.Is(err, service.ErrUnknownCollection), ShouldBeTrue)
			})
		})
	})
}

func TestService_SingleItem(t *testing.T) {
	Convey("Given a collection with a single item", t, func() {
		svc, ctx := startService()
		defer svc.Stop()
		_, err := svc.RegisterItems(ctx, "solo", []string{"only"})
		So(err, ShouldBeNil)

		Convey("Then no matchup is offered and the collection is converged", func() {
			_, ok, err := svc.NextMatchup(ctx, "solo")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			c, err := svc.Convergence(ctx, "solo")
			So(err, ShouldBeNil)
			So(c, ShouldEqual, 1.0)
		})
	})
}

func TestService_Judge(t *testing.T) {
	Convey("Given a started service with a fresh pool", t, func() {
		svc, ctx := startService()
		defer svc.Stop()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b", "c"})
		So(err, ShouldBeNil)

		Convey("When the baseline wins the first judgment", func() {
			res, err := svc.Judge(ctx, model.Judgment{
				ID: "j1", Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeBaseline,
			})

			Convey("Then both records move by 32 with K at its ceiling", func() {
				So(err, ShouldBeNil)
				So(res.JudgmentID, ShouldEqual, "j1")
				So(res.Result.K, ShouldEqual, 64)
				So(res.Result.Baseline.Rating, ShouldAlmostEqual, 32, 1e-9)
				So(res.Result.Candidate.Rating, ShouldAlmostEqual, -32, 1e-9)

				rec, err := svc.Record(ctx, "pl", "a")
				So(err, ShouldBeNil)
				So(rec.Observations, ShouldEqual, 1)
			})

			Convey("And replaying the same id is a duplicate", func() {
				res, err := svc.Judge(ctx, model.Judgment{
					ID: "j1", Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeBaseline,
				})
				So(errors.Is(err, service.ErrDuplicateJudgment), ShouldBeTrue)
				So(res.Duplicate, ShouldBeTrue)

				rec, _ := svc.Record(ctx, "pl", "a")
				So(rec.Observations, ShouldEqual, 1)
			})

			Convey("And the standings put the winner first", func() {
				st, err := svc.Standings(ctx, "pl", 0)
				So(err, ShouldBeNil)
				So(len(st), ShouldEqual, 3)
				So(st[0].ItemID, ShouldEqual, "a")
				So(st[1].ItemID, ShouldEqual, "c")
				So(st[2].ItemID, ShouldEqual, "b")
				So([]int{st[0].Rank, st[1].Rank, st[2].Rank}, ShouldResemble, []int{1, 2, 3})

				top, err := svc.Standings(ctx, "pl", 1)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
			})
		})

		Convey("When a judgment has no id", func() {
			res, err := svc.Judge(ctx, model.Judgment{
				Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeTie,
			})

			Convey("Then one is generated", func() {
				So(err, ShouldBeNil)
				So(res.JudgmentID, ShouldNotBeEmpty)
			})
		})

		Convey("When a judgment is malformed", func() {
			_, errSame := svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "a", Outcome: model.OutcomeTie})
			_, errItem := svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "z", Outcome: model.OutcomeTie})
			_, errOutcome := svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "b", Outcome: "draw"})

			Convey("Then each is rejected with its own error", func() {
				So(errors.Is(errSame, rating.ErrInvalidMatchup), ShouldBeTrue)
				So(errors.Is(errItem, service.ErrUnknownItem), ShouldBeTrue)
				So(errors.Is(errOutcome, rating.ErrInvalidOutcome), ShouldBeTrue)
			})
		})
	})
}

// failingStore refuses writes until healed.
type failingStore struct {
	*repository.MemoryStore
	fail bool
}

func (f *failingStore) Set(ctx context.Context, collection string, r model.Record) error {
	if f.fail {
		return model.NewStorageError("set", collection, r.ItemID, errors.New("disk full"))
	}
	return f.MemoryStore.Set(ctx, collection, r)
}

func TestService_StorageFailure(t *testing.T) {
	Convey("Given a service whose store rejects writes", t, func() {
		store := &failingStore{MemoryStore: repository.NewMemoryStore(), fail: true}
		svc, ctx := startService(service.WithStore(store), service.WithWorkerCount(1))
		defer svc.Stop()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)
		j := model.Judgment{ID: "j1", Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeCandidate}

		Convey("When a judgment is submitted", func() {
			_, err := svc.Judge(ctx, j)

			Convey("Then a retryable storage error is returned", func() {
				var se *model.StorageError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Retryable(), ShouldBeTrue)
				So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			})

			Convey("And the same id can be retried once the store recovers", func() {
				store.fail = false
				res, err := svc.Judge(ctx, j)
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Result.Candidate.Observations, ShouldEqual, 1)
			})
		})
	})
}

func TestService_SubscribeAndExport(t *testing.T) {
	Convey("Given a started service with a pool", t, func() {
		svc, ctx := startService()
		defer svc.Stop()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)

		Convey("When subscribing and judging", func() {
			got := make(chan model.Snapshot, 8)
			unsubscribe, err := svc.Subscribe(ctx, "pl", func(s model.Snapshot) { got <- s })
			So(err, ShouldBeNil)
			defer unsubscribe()

			first := <-got
			So(first.Len(), ShouldEqual, 2)
			So(first.Get("a").Observations, ShouldEqual, 0)

			_, err = svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeBaseline})
			So(err, ShouldBeNil)

			Convey("Then a snapshot with the new ratings arrives", func() {
				deadline := time.After(2 * time.Second)
				for {
					select {
					case s := <-got:
						if s.Get("a").Observations == 1 && s.Get("b").Observations == 1 {
							So(s.Get("a").Rating, ShouldBeGreaterThan, 0)
							return
						}
					case <-deadline:
						So("snapshot", ShouldEqual, "never delivered")
						return
					}
				}
			})
		})

		Convey("When exporting the collection", func() {
			path := filepath.Join(t.TempDir(), "pl.json")
			doc, err := svc.Export(ctx, "pl", path)
			So(err, ShouldBeNil)

			Convey("Then the file holds every pool item", func() {
				So(len(doc.Standings), ShouldEqual, 2)
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var back repository.ExportDocument
				So(json.Unmarshal(data, &back), ShouldBeNil)
				So(back.Collection, ShouldEqual, "pl")
				So(len(back.Standings), ShouldEqual, 2)
			})
		})
	})
}
