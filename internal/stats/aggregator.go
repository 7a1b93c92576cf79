package stats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/verte-zerg/vstask/internal/model"
)

// Source lists the record corpus and persists the derived summary.
type Source interface {
	List(ctx context.Context) ([]model.GameRecord, error)
	SaveSummary(ctx context.Context, sum model.Summary) error
	LoadSummary(ctx context.Context) (*model.Summary, error)
}

// Aggregator recomputes and persists the summary. Concurrent refreshes share
// one scan, and a caller never receives a scan that began before its request.
type Aggregator struct {
	src      Source
	window   int
	logger   *zap.Logger
	now      func() time.Time
	observe  func(time.Duration, error)
	group    singleflight.Group
	requests atomic.Uint64
}

type refreshResult struct {
	summary model.Summary
	seen    uint64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWindow sets the learning-curve window size.
func WithWindow(window int) AggregatorOption {
	return func(a *Aggregator) {
		if window > 0 {
			a.window = window
		}
	}
}

// WithAggregatorLogger sets the zap logger.
func WithAggregatorLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAggregatorClock overrides the time source for last_updated.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithRefreshObserver receives the duration and outcome of every scan.
func WithRefreshObserver(fn func(time.Duration, error)) AggregatorOption {
	return func(a *Aggregator) {
		a.observe = fn
	}
}

// NewAggregator returns an Aggregator over src.
func NewAggregator(src Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		src:    src,
		window: DefaultWindow,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh rescans all records and replaces the persisted summary. On a list
// failure the previous summary stays untouched. The scan is shared with
// concurrent callers, so it ignores cancellation of ctx.
func (a *Aggregator) Refresh(ctx context.Context) (model.Summary, error) {
	ticket := a.requests.Add(1)
	scanCtx := context.WithoutCancel(ctx)
	for {
		v, err, shared := a.group.Do("refresh", func() (any, error) {
			return a.refresh(scanCtx)
		})
		if err != nil {
			return model.Summary{}, err
		}
		res := v.(refreshResult)
		if res.seen >= ticket {
			if shared {
				a.logger.Debug("joined in-flight statistics refresh")
			}
			return res.summary, nil
		}
	}
}

func (a *Aggregator) refresh(ctx context.Context) (refreshResult, error) {
	seen := a.requests.Load()
	started := time.Now()
	records, err := a.src.List(ctx)
	if err != nil {
		a.report(time.Since(started), err)
		return refreshResult{}, fmt.Errorf("list records: %w", err)
	}
	sum := Compute(records, a.now(), a.window)
	if err := a.src.SaveSummary(ctx, sum); err != nil {
		a.report(time.Since(started), err)
		return refreshResult{}, fmt.Errorf("save summary: %w", err)
	}
	a.report(time.Since(started), nil)
	a.logger.Info("statistics updated",
		zap.Int("total_games", sum.TotalGames),
		zap.Float64("success_rate", sum.SuccessRate),
	)
	return refreshResult{summary: sum, seen: seen}, nil
}

func (a *Aggregator) report(elapsed time.Duration, err error) {
	if a.observe != nil {
		a.observe(elapsed, err)
	}
}

// Current returns the persisted summary, or nil when none was computed yet.
func (a *Aggregator) Current(ctx context.Context) (*model.Summary, error) {
	return a.src.LoadSummary(ctx)
}
