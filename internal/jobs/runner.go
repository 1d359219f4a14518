// Package jobs runs batches of product scrapes with bounded concurrency.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/review-scraper/internal/ratelimit"
	"github.com/maltedev/review-scraper/internal/scraper"
)

// Scraper scrapes one product page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Result, error)
}

// Limiter paces scrape starts.
type Limiter interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

// Item is the outcome of one URL of a batch.
type Item struct {
	URL      string          `json:"url"`
	Result   *scraper.Result `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
	Duration time.Duration   `json:"duration"`
}

type Runner struct {
	scraper Scraper
	limiter Limiter
	workers int
	logger  *slog.Logger
}

// NewRunner returns a runner with at most workers scrapes in flight.
// limiter may be nil to start scrapes without pacing.
func NewRunner(s Scraper, limiter Limiter, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		scraper: s,
		limiter: limiter,
		workers: workers,
		logger:  logger.With("component", "jobs"),
	}
}

// NewAdaptiveLimiter is the limiter used by the server and CLI.
func NewAdaptiveLimiter(minDelay, maxDelay time.Duration) Limiter {
	return ratelimit.NewAdaptiveRateLimiter(minDelay, maxDelay)
}

// Run scrapes every url and returns one item per url in input order. A
// failed url never stops the others; cancelling ctx marks the remaining
// ones with the context error.
func (r *Runner) Run(ctx context.Context, urls []string) []Item {
	items := make([]Item, len(urls))

	var g errgroup.Group
	g.SetLimit(r.workers)

	start := time.Now()
	for i, u := range urls {
		items[i].URL = u

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				items[i].fail(err)
				continue
			}
		} else if err := ctx.Err(); err != nil {
			items[i].fail(err)
			continue
		}

		g.Go(func() error {
			r.scrape(ctx, &items[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	r.logger.Info("batch finished",
		"urls", len(urls),
		"failed", failed,
		"duration", time.Since(start))

	return items
}

func (r *Runner) scrape(ctx context.Context, item *Item) {
	start := time.Now()
	res, err := r.scraper.Scrape(ctx, item.URL)
	item.Duration = time.Since(start)

	if err != nil {
		item.fail(err)
		if r.limiter != nil {
			r.limiter.RecordError()
		}
		r.logger.Warn("batch item failed", "url", item.URL, "error", err)
		return
	}

	item.Result = res
	if r.limiter != nil {
		r.limiter.RecordSuccess()
	}
}

func (it *Item) fail(err error) {
	it.Err = err
	it.Error = err.Error()
}
