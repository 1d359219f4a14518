package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/scraper"
)

type fakeScraper struct {
	delay    time.Duration
	fail     map[string]error
	inflight atomic.Int32
	peak     atomic.Int32

	mu   sync.Mutex
	seen []string
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (*scraper.Result, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, url)
	f.mu.Unlock()

	time.Sleep(f.delay)
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	snap := &models.Snapshot{URL: url, Status: models.StatusComplete}
	return &scraper.Result{Snapshot: snap, Status: snap.Status}, nil
}

type countingLimiter struct {
	waits, successes, errors atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits.Add(1)
	return ctx.Err()
}

func (l *countingLimiter) RecordSuccess() { l.successes.Add(1) }
func (l *countingLimiter) RecordError()   { l.errors.Add(1) }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_Run(t *testing.T) {
	boom := errors.New("navigation failed")
	s := &fakeScraper{
		delay: 5 * time.Millisecond,
		fail:  map[string]error{"https://shop.example/b": boom},
	}
	limiter := &countingLimiter{}
	urls := []string{"https://shop.example/a", "https://shop.example/b", "https://shop.example/c", "https://shop.example/d"}

	items := NewRunner(s, limiter, 2, discard()).Run(context.Background(), urls)

	require.Len(t, items, len(urls))
	for i, it := range items {
		assert.Equal(t, urls[i], it.URL)
	}
	assert.ErrorIs(t, items[1].Err, boom)
	assert.Equal(t, "navigation failed", items[1].Error)
	assert.Nil(t, items[1].Result)
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, items[i].Err)
		assert.Equal(t, urls[i], items[i].Result.Snapshot.URL)
	}

	assert.LessOrEqual(t, s.peak.Load(), int32(2))
	assert.Equal(t, int32(4), limiter.waits.Load())
	assert.Equal(t, int32(3), limiter.successes.Load())
	assert.Equal(t, int32(1), limiter.errors.Load())
}

func TestRunner_Cancelled(t *testing.T) {
	s := &fakeScraper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := NewRunner(s, nil, 3, discard()).Run(ctx, []string{"https://shop.example/a", "https://shop.example/b"})

	for _, it := range items {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
	assert.Empty(t, s.seen)
}

func TestRunner_Empty(t *testing.T) {
	items := NewRunner(&fakeScraper{}, nil, 0, discard()).Run(context.Background(), nil)
	assert.Empty(t, items)
}
