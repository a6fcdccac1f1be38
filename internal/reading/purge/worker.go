package purge

import (
	"context"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/ratelimit"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, bool, error)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Store  readingdomain.Store
	Lock   *ratelimit.PurgeLock `optional:"true"`
	Clock  clock.Clock          `optional:"true"`
	Config Config               `optional:"true"`
}

type Worker struct {
	log   *zap.Logger
	store readingdomain.Store
	lock  locker
	clock clock.Clock
	cfg   Config
}

func NewWorker(p Params) *Worker {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Worker{
		log:   p.Log.Named("reading.purge"),
		store: p.Store,
		lock:  p.Lock,
		clock: clk,
		cfg:   p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("purge run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce deletes expired readings in batches until a short batch is seen or
// the per-run batch cap is reached. It returns the number of rows removed.
func (w *Worker) RunOnce(parentCtx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	release, ok, err := w.lock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		w.log.Debug("purge lock held elsewhere, skipping run")
		return 0, nil
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			w.log.Warn("failed to release purge lock", zap.Error(err))
		}
	}()

	var total int64
	for i := 0; i < w.cfg.MaxBatchesRun; i++ {
		deleted, err := w.store.PurgeExpired(ctx, w.clock.Now().Unix(), w.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(w.cfg.BatchSize) {
			break
		}
	}
	return total, nil
}
