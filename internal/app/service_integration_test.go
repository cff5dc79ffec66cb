package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	service "github.com/okian/elorank/internal/app"
	workerpool "github.com/okian/elorank/internal/adapters/mq/worker"
	"github.com/okian/elorank/internal/adapters/repository"
	"github.com/okian/elorank/internal/domain/matchmaker"
	"github.com/okian/elorank/internal/domain/model"
)

type backendCase struct {
	name string
	open func(t *testing.T) repository.Store
}

func integrationBackends() []backendCase {
	return []backendCase{
		{"memory", func(*testing.T) repository.Store { return repository.NewMemoryStore() }},
		{"badger", func(*testing.T) repository.Store {
			s, err := repository.OpenBadgerStore("")
			So(err, ShouldBeNil)
			return s
		}},
		{"sqlite", func(t *testing.T) repository.Store {
			s, err := repository.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "elorank.db"),
				repository.WithPollInterval(20*time.Millisecond))
			So(err, ShouldBeNil)
			return s
		}},
		{"redis", func(t *testing.T) repository.Store {
			mr := miniredis.RunT(t)
			s, err := repository.NewRedisStore(context.Background(), repository.RedisConfig{Addr: mr.Addr()})
			So(err, ShouldBeNil)
			return s
		}},
	}
}

func TestServiceConcurrentJudgments(t *testing.T) {
	for _, bc := range integrationBackends() {
		Convey(fmt.Sprintf("Given a %s-backed service with several writers", bc.name), t, func() {
			store := repository.Instrument(bc.open(t), bc.name)
			svc, ctx := startService(
				service.WithStore(store),
				service.WithWorkerCount(4),
				service.WithQueueSize(1000),
			)
			defer svc.Stop()

			items := []string{"a", "b", "c", "d"}
			for _, c := range []string{"pl-1", "pl-2"} {
				_, err := svc.RegisterItems(ctx, c, items)
				So(err, ShouldBeNil)
			}

			Convey("When overlapping judgments race on the same collections", func() {
				const perCollection = 40
				var wg sync.WaitGroup
				errs := make(chan error, 2*perCollection)
				for _, c := range []string{"pl-1", "pl-2"} {
					for i := range perCollection {
						wg.Add(1)
						go func(c string, i int) {
							defer wg.Done()
							_, err := svc.Judge(ctx, model.Judgment{
								ID:         fmt.Sprintf("%s-%d", c, i),
								Collection: c,
								Baseline:   items[i%2],
								Candidate:  items[2+i%2],
								Outcome:    model.OutcomeBaseline,
							})
							errs <- err
						}(c, i)
					}
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					So(err, ShouldBeNil)
				}

				Convey("Then no update is lost", func() {
					for _, c := range []string{"pl-1", "pl-2"} {
						st, err := svc.Standings(ctx, c, 0)
						So(err, ShouldBeNil)
						total := 0
						for _, s := range st {
							total += s.Observations
						}
						So(total, ShouldEqual, 2*perCollection)
					}
				})

				Convey("And collections are rated independently", func() {
					r1, err := svc.Record(ctx, "pl-1", "a")
					So(err, ShouldBeNil)
					r2, err := svc.Record(ctx, "pl-2", "a")
					So(err, ShouldBeNil)
					So(r1.Observations, ShouldEqual, perCollection/2)
					So(r2.Observations, ShouldEqual, perCollection/2)
				})
			})
		})
	}
}

func TestServiceMatchmakingLoop(t *testing.T) {
	Convey("Given a seeded service and a pool of fresh items", t, func() {
		svc, ctx := startService(service.WithMatchmaker(matchmaker.New(matchmaker.WithSeed(7))))
		defer svc.Stop()

		items := make([]string, 12)
		for i := range items {
			items[i] = fmt.Sprintf("song-%02d", i)
		}
		_, err := svc.RegisterItems(ctx, "pl", items)
		So(err, ShouldBeNil)

		before, err := svc.Convergence(ctx, "pl")
		So(err, ShouldBeNil)

		Convey("When the lower id always wins its matchup", func() {
			for range 300 {
				m, ok, err := svc.NextMatchup(ctx, "pl")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(m.Baseline, ShouldNotEqual, m.Candidate)
				outcome := model.OutcomeCandidate
				if m.Baseline < m.Candidate {
					outcome = model.OutcomeBaseline
				}
				_, err = svc.Judge(ctx, model.Judgment{ID: m.ID, Collection: "pl", Baseline: m.Baseline, Candidate: m.Candidate, Outcome: outcome})
				So(err, ShouldBeNil)
			}

			Convey("Then convergence rises and the extremes are ordered", func() {
				after, err := svc.Convergence(ctx, "pl")
				So(err, ShouldBeNil)
				So(after, ShouldBeGreaterThan, before)

				st, err := svc.Standings(ctx, "pl", 0)
				So(err, ShouldBeNil)
				pos := make(map[string]int, len(st))
				for i, s := range st {
					pos[s.ItemID] = i
				}
				So(pos["song-00"], ShouldBeLessThan, 3)
				So(pos["song-11"], ShouldBeGreaterThan, len(st)-4)
			})
		})
	})
}

func TestServiceErrorHandling(t *testing.T) {
	Convey("Given a stopped service", t, func() {
		svc, ctx := startService()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("Then judgments are refused", func() {
			_, err := svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeTie})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a service whose caller gives up immediately", t, func() {
		svc, ctx := startService()
		defer svc.Stop()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		j := model.Judgment{ID: "j1", Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeTie}
		_, err = svc.Judge(cancelled, j)

		Convey("Then the judgment was never queued and can be resubmitted", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			res, err := svc.Judge(ctx, j)
			So(err, ShouldBeNil)
			So(res.Result.Baseline.Observations, ShouldEqual, 1)
		})
	})
}

func TestServiceStartContextCancelled(t *testing.T) {
	Convey("Given a service started on a context that is later cancelled", t, func() {
		startCtx, cancel := context.WithCancel(context.Background())
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(startCtx), ShouldBeNil)
		defer svc.Stop()
		ctx := context.Background()
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)
		cancel()

		Convey("When a judgment arrives afterwards", func() {
			res, err := svc.Judge(ctx, model.Judgment{ID: "j1", Collection: "pl", Baseline: "a", Candidate: "b", Outcome: model.OutcomeBaseline})

			Convey("Then the writers still apply it", func() {
				So(err, ShouldBeNil)
				So(res.Result.Baseline.Observations, ShouldEqual, 1)
				rec, err := svc.Record(ctx, "pl", "a")
				So(err, ShouldBeNil)
				So(rec.Rating, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestServiceJudgeDuringStop(t *testing.T) {
	Convey("Given judgments racing a Stop", t, func() {
		svc, ctx := startService(service.WithWorkerCount(2))
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b"})
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		errs := make(chan error, 400)
		for g := range 4 {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := range 100 {
					_, err := svc.Judge(ctx, model.Judgment{
						ID:         fmt.Sprintf("%d-%d", g, i),
						Collection: "pl",
						Baseline:   "a",
						Candidate:  "b",
						Outcome:    model.OutcomeTie,
					})
					errs <- err
				}
			}(g)
		}
		time.Sleep(time.Millisecond)
		svc.Stop()
		wg.Wait()
		close(errs)

		Convey("Then every judgment is applied or cleanly refused", func() {
			for err := range errs {
				if err == nil {
					continue
				}
				So(errors.Is(err, service.ErrNotStarted) || errors.Is(err, workerpool.ErrStopped), ShouldBeTrue)
			}
		})
	})
}

func TestServiceNoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given a service that is started, used and stopped", t, func() {
		svc, ctx := startService(service.WithWorkerCount(3))
		_, err := svc.RegisterItems(ctx, "pl", []string{"a", "b", "c"})
		So(err, ShouldBeNil)
		unsubscribe, err := svc.Subscribe(ctx, "pl", func(model.Snapshot) {})
		So(err, ShouldBeNil)
		_, err = svc.Judge(ctx, model.Judgment{Collection: "pl", Baseline: "a", Candidate: "c", Outcome: model.OutcomeCandidate})
		So(err, ShouldBeNil)
		unsubscribe()
		svc.Stop()
	})
}
