package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
)

// poller backs Subscribe for stores without a change feed: it reloads the
// collection on a ticker and delivers only snapshots that differ.
type poller struct {
	interval time.Duration
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPoller(interval time.Duration, log logger.Logger) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &poller{interval: interval, log: log, ctx: ctx, cancel: cancel}
}

func (p *poller) subscribe(ctx context.Context, collection string, load func(context.Context, string) (model.Snapshot, error), onChange func(model.Snapshot)) (func(), error) {
	if p.ctx.Err() != nil {
		return nil, ErrClosed
	}
	last, err := load(ctx, collection)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(p.ctx, cancel)
	sub := startSubscription(subCtx, onChange)
	sub.offer(last)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				next, err := load(subCtx, collection)
				if err != nil {
					if subCtx.Err() == nil {
						p.log.Warn(subCtx, "poll failed", logger.String("collection", collection), logger.Error(err))
					}
					continue
				}
				if !next.Equal(last) {
					last = next
					sub.offer(next)
				}
			}
		}
	}()

	return func() {
		stopOnClose()
		cancel()
		sub.stop()
	}, nil
}

func (p *poller) close() {
	p.cancel()
	p.wg.Wait()
}
