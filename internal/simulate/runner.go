package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
)

// Run simulates cfg.Collections collections against engine concurrently
// and reports convergence and rank correlation at every checkpoint.
func Run(ctx context.Context, cfg Config, engine Engine, log logger.Logger) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if log == nil {
		log = logger.Nop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	start := time.Now()
	log.Info(ctx, "starting simulation",
		logger.Int("collections", cfg.Collections),
		logger.Int("items", cfg.Items),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
	)

	reports := make([]CollectionReport, cfg.Collections)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Collections {
		collection := fmt.Sprintf("sim-%d-%d", seed%100000, i)
		// Each collection gets its own stream so results do not depend on scheduling.
		r := rand.New(rand.NewPCG(seed, uint64(i)+1))
		g.Go(func() error {
			rep, err := runCollection(gctx, cfg, engine, log, collection, r)
			if err != nil {
				return fmt.Errorf("collection %s: %w", collection, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Collections: reports, Duration: time.Since(start)}
	displayFinalStats(ctx, log, report)
	return report, nil
}

func runCollection(ctx context.Context, cfg Config, engine Engine, log logger.Logger, collection string, r *rand.Rand) (CollectionReport, error) {
	items := generateItems(r, collection, cfg.Items, cfg.Spread)
	strength := make(map[string]float64, len(items))
	ids := make([]string, len(items))
	for i, it := range items {
		strength[it.ID] = it.Strength
		ids[i] = it.ID
	}
	if _, err := engine.RegisterItems(ctx, collection, ids); err != nil {
		return CollectionReport{}, fmt.Errorf("register items: %w", err)
	}

	rep := CollectionReport{Collection: collection, Items: len(items)}
	for round := 1; round <= cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		m, ok, err := engine.NextMatchup(ctx, collection)
		if err != nil {
			return rep, fmt.Errorf("next matchup: %w", err)
		}
		if !ok {
			break
		}
		if m.Branch == model.BranchExplore {
			rep.Explore++
		}

		outcome := judge(r, strength[m.Baseline], strength[m.Candidate], cfg.Scale, cfg.TieBand)
		if outcome == model.OutcomeTie {
			rep.Ties++
		}
		err = engine.Submit(ctx, model.Judgment{
			ID:         m.ID,
			Collection: collection,
			Baseline:   m.Baseline,
			Candidate:  m.Candidate,
			Outcome:    outcome,
		})
		if err != nil {
			rep.Failed++
			log.Warn(ctx, "judgment failed", logger.String("collection", collection), logger.Error(err))
		} else {
			rep.Judgments++
		}

		if cfg.Checkpoint > 0 && round%cfg.Checkpoint == 0 && round != cfg.Rounds {
			cp, err := sample(ctx, engine, collection, items, round)
			if err != nil {
				return rep, err
			}
			rep.Checkpoints = append(rep.Checkpoints, cp)
			if cfg.Verbose {
				log.Info(ctx, "checkpoint",
					logger.String("collection", collection),
					logger.Int("round", round),
					logger.Float64("convergence", cp.Convergence),
					logger.Float64("spearman", cp.Spearman),
				)
			}
		}
	}

	final, err := sample(ctx, engine, collection, items, cfg.Rounds)
	if err != nil {
		return rep, err
	}
	rep.Checkpoints = append(rep.Checkpoints, final)
	rep.Final = final
	return rep, nil
}

func sample(ctx context.Context, engine Engine, collection string, items []Item, round int) (Checkpoint, error) {
	c, err := engine.Convergence(ctx, collection)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("convergence: %w", err)
	}
	st, err := engine.Standings(ctx, collection)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("standings: %w", err)
	}
	return Checkpoint{Round: round, Convergence: c, Spearman: spearman(items, st)}, nil
}

// displayFinalStats logs the per-collection outcome.
func displayFinalStats(ctx context.Context, log logger.Logger, report Report) {
	for _, c := range report.Collections {
		log.Info(ctx, "collection finished",
			logger.String("collection", c.Collection),
			logger.Int("judgments", c.Judgments),
			logger.Int("ties", c.Ties),
			logger.Int("explore", c.Explore),
			logger.Int("failed", c.Failed),
			logger.Float64("convergence", c.Final.Convergence),
			logger.Float64("spearman", c.Final.Spearman),
		)
	}
	log.Info(ctx, "final statistics",
		logger.Int("collections", len(report.Collections)),
		logger.Float64("meanSpearman", report.MeanSpearman()),
		logger.Duration("duration", report.Duration),
	)
}
