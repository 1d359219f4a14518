// Package reviews collects a bounded, ranked sample of reviews by sorting
// the review list by helpfulness and paging through it.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/parser"
	"github.com/maltedev/review-scraper/internal/validate"
)

type Selectors struct {
	HelpfulSort string
	List        string
	Item        string
	Text        string
	Pager       string
}

func DefaultSelectors() Selectors {
	return Selectors{
		HelpfulSort: "#gdasSort > li:nth-child(2) > a",
		List:        "#gdasList",
		Item:        "#gdasList > li",
		Text:        "div.review_cont > div.txt_inner",
		Pager:       "#gdasContentsArea > div > div.pageing",
	}
}

type Config struct {
	Target         int
	MaxPages       int
	ElementTimeout time.Duration
	PageTimeout    time.Duration
	PollInterval   time.Duration
	Policy         validate.Policy
}

func DefaultConfig() Config {
	return Config{
		Target:         30,
		MaxPages:       50,
		ElementTimeout: 5 * time.Second,
		PageTimeout:    30 * time.Second,
		PollInterval:   250 * time.Millisecond,
		Policy:         validate.DefaultPolicy(),
	}
}

// SortUnavailableError records that the helpfulness sort could not be
// applied. The run continues in the page's default order.
type SortUnavailableError struct {
	Err error
}

func (e *SortUnavailableError) Error() string {
	return fmt.Sprintf("helpful sort unavailable, using default order: %v", e.Err)
}

func (e *SortUnavailableError) Unwrap() error {
	return e.Err
}

// Collection is the outcome of a run. Partial is set when the run failed
// and Reviews holds what was collected before Err.
type Collection struct {
	Reviews  []models.ReviewRecord
	SortMode SortMode
	Pages    int
	Retries  int
	Warnings []string
	Partial  bool
	Err      error
}

type Engine struct {
	sel     Selectors
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewEngine(sel Selectors, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	// A reload would collapse the review tab and lose the sort.
	cfg.Policy.ReloadOnExhaust = false
	return &Engine{
		sel:     sel,
		cfg:     cfg,
		logger:  logger.With("component", "reviews"),
		metrics: m,
	}
}

// Run collects up to the configured target of reviews from pg, which must
// already show the review tab.
func (e *Engine) Run(ctx context.Context, pg page.Page) *Collection {
	rc := newRunContext(pg, e.cfg.Target)
	log := e.logger.With("url", pg.URL(), "target", rc.Target)

	for !rc.State.Terminal() {
		if err := ctx.Err(); err != nil {
			rc.fail(err)
			break
		}

		switch rc.State {
		case StateInit:
			e.applySort(ctx, rc)
		case StateSortApplied:
			e.loadFirstPage(ctx, rc)
		case StatePageLoaded:
			e.extractPage(ctx, rc)
		case StateExtracting:
			e.advance(ctx, rc)
		}
	}

	if rc.State == StateFailed {
		log.Warn("review collection stopped early",
			"collected", len(rc.Collected),
			"page", rc.CurrentPage,
			"error", rc.Err)
	} else {
		log.Info("review collection finished",
			"collected", len(rc.Collected),
			"pages", rc.Pages,
			"sort", rc.SortMode)
	}
	e.metrics.AddReviews(len(rc.Collected))

	return rc.collection()
}

func (e *Engine) applySort(ctx context.Context, rc *RunContext) {
	if _, err := rc.Page.WaitFor(e.sel.HelpfulSort, e.cfg.ElementTimeout); err != nil {
		if validate.Classify(err).Kind == validate.Fatal {
			rc.fail(err)
			return
		}
		rc.warn(&SortUnavailableError{Err: err})
		rc.State = StateSortApplied
		return
	}

	marker, before, err := e.listMarker(rc.Page)
	if err != nil {
		if validate.Classify(err).Kind == validate.Fatal {
			rc.fail(fmt.Errorf("failed to read review list: %w", err))
			return
		}
		marker = nil
	}

	attempts := 0
	_, err = validate.Run(ctx, e.cfg.Policy, func(ctx context.Context, s validate.State) validate.Verdict {
		attempts++
		ctrl, err := rc.Page.WaitFor(e.sel.HelpfulSort, e.cfg.ElementTimeout)
		if err != nil {
			return validate.Classify(err)
		}
		return validate.Classify(ctrl.Click())
	}, nil)
	e.countRetries(rc, "sort", attempts)

	if err == nil {
		err = e.awaitResort(ctx, marker, before)
	}

	switch {
	case err == nil:
		rc.SortMode = SortHelpful
	case validate.Classify(err).Kind == validate.Fatal:
		rc.fail(err)
		return
	default:
		rc.warn(&SortUnavailableError{Err: err})
	}
	rc.State = StateSortApplied
}

func (e *Engine) loadFirstPage(ctx context.Context, rc *RunContext) {
	attempts := 0
	_, err := validate.Run(ctx, e.cfg.Policy, func(ctx context.Context, s validate.State) validate.Verdict {
		attempts++
		_, err := rc.Page.WaitFor(e.sel.List, e.cfg.ElementTimeout)
		return validate.Classify(err)
	}, nil)
	e.countRetries(rc, "review_list", attempts)

	if err != nil {
		if validate.Classify(err).Kind == validate.Fatal {
			rc.fail(err)
			return
		}
		rc.warnf("review list not found: %v", err)
		rc.State = StateDone
		return
	}

	current, err := e.pagerIndex(rc.Page)
	if err != nil {
		rc.fail(fmt.Errorf("failed to read pager: %w", err))
		return
	}
	if current == 0 {
		current = 1
	}
	rc.CurrentPage = current
	rc.State = StatePageLoaded
}

func (e *Engine) extractPage(ctx context.Context, rc *RunContext) {
	var (
		texts    []string
		items    int
		attempts int
	)
	_, err := validate.Run(ctx, e.cfg.Policy, func(ctx context.Context, s validate.State) validate.Verdict {
		attempts++
		t, n, err := e.readPage(rc.Page)
		if err == nil {
			texts, items = t, n
		}
		return validate.ReviewPage(t, err)
	}, nil)
	e.countRetries(rc, "review_page", attempts)

	switch {
	case errors.Is(err, validate.ErrBlankReview):
		rc.warnf("skipped blank reviews on page %d", rc.CurrentPage)
	case err != nil:
		rc.fail(fmt.Errorf("failed to extract review page %d: %w", rc.CurrentPage, err))
		return
	}
	texts = nonBlank(texts)

	rc.Pages++
	e.metrics.IncPages()

	if items == 0 {
		rc.State = StateDone
		return
	}

	if rc.afterRetry {
		before := len(texts)
		texts = dropOverlap(rc.Collected, texts)
		if dropped := before - len(texts); dropped > 0 {
			e.logger.Debug("dropped reviews repeated across pages", "page", rc.CurrentPage, "count", dropped)
		}
		rc.afterRetry = false
	}

	for _, text := range texts {
		if len(rc.Collected) >= rc.Target {
			break
		}
		rc.Collected = append(rc.Collected, models.ReviewRecord{Text: text, Rank: len(rc.Collected) + 1})
	}

	e.logger.Debug("review page extracted",
		"page", rc.CurrentPage,
		"items", items,
		"collected", len(rc.Collected))

	if len(rc.Collected) >= rc.Target {
		rc.State = StateDone
		return
	}
	if rc.Pages >= e.cfg.MaxPages {
		rc.warnf("stopped after %d review pages", rc.Pages)
		rc.State = StateDone
		return
	}
	rc.State = StateExtracting
}

func (e *Engine) advance(ctx context.Context, rc *RunContext) {
	want := rc.CurrentPage + 1
	noNext := false
	attempts := 0

	_, err := validate.Run(ctx, e.cfg.Policy, func(ctx context.Context, s validate.State) validate.Verdict {
		attempts++
		if attempts > 1 {
			// The click may have landed even though the wait failed.
			if cur, err := e.pagerIndex(rc.Page); err == nil && cur == want {
				return validate.Classify(e.awaitPage(ctx, rc.Page, want))
			}
		}

		ctrl, err := e.nextControl(rc.Page, rc.CurrentPage)
		if err != nil {
			return validate.Classify(err)
		}
		if ctrl == nil {
			noNext = true
			return validate.Accept()
		}
		if err := ctrl.Click(); err != nil {
			return validate.Classify(err)
		}
		return validate.Classify(e.awaitPage(ctx, rc.Page, want))
	}, nil)
	e.countRetries(rc, "pagination", attempts)

	switch {
	case err != nil:
		rc.fail(fmt.Errorf("failed to advance to review page %d: %w", want, err))
	case noNext:
		rc.State = StateDone
	default:
		rc.CurrentPage = want
		rc.afterRetry = attempts > 1
		rc.State = StatePageLoaded
	}
}

// readPage returns the review texts of the current page and the number of
// list items. Items without a text block are photo-only reviews and are
// left out; blank text blocks are kept for validation.
func (e *Engine) readPage(pg page.Page) ([]string, int, error) {
	items, err := pg.QueryAll(e.sel.Item)
	if err != nil {
		return nil, 0, err
	}

	texts := make([]string, 0, len(items))
	for _, item := range items {
		blocks, err := item.QueryAll(e.sel.Text)
		if err != nil {
			return nil, 0, err
		}
		if len(blocks) == 0 {
			continue
		}
		text, err := blocks[0].Text()
		if err != nil {
			return nil, 0, err
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, len(items), nil
}

func nonBlank(texts []string) []string {
	out := texts[:0]
	for _, t := range texts {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// nextControl returns the control leading to the page after current, or
// nil when there is none. Pages come in blocks of ten and the last page of
// a block is followed by the "next block" control.
func (e *Engine) nextControl(pg page.Page, current int) (page.Element, error) {
	selector := e.sel.Pager + " > strong + a"
	if current%10 == 0 {
		selector = e.sel.Pager + " > a.next"
	}

	ctrl, err := pg.Query(selector)
	if err != nil || ctrl == nil {
		return nil, err
	}

	disabled, err := isDisabled(ctrl)
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, nil
	}
	return ctrl, nil
}

// pagerIndex returns the highlighted page number, or 0 without a pager.
func (e *Engine) pagerIndex(pg page.Page) (int, error) {
	el, err := pg.Query(e.sel.Pager + " > strong")
	if err != nil || el == nil {
		return 0, err
	}
	text, err := el.Text()
	if err != nil {
		return 0, err
	}
	n, ok := parser.ParseInt(text)
	if !ok {
		return 0, fmt.Errorf("unreadable page index %q", text)
	}
	return n, nil
}

// awaitPage polls the pager until it highlights want.
func (e *Engine) awaitPage(ctx context.Context, pg page.Page, want int) error {
	current := e.sel.Pager + " > strong"
	deadline := time.Now().Add(e.cfg.PageTimeout)

	for {
		el, err := pg.WaitFor(current, e.cfg.ElementTimeout)
		if err != nil {
			return err
		}
		text, err := el.Text()
		if err != nil && !errors.Is(err, page.ErrDetached) {
			return err
		}
		if n, ok := parser.ParseInt(text); err == nil && ok && n == want {
			if _, err := pg.WaitFor(e.sel.List, e.cfg.ElementTimeout); err != nil {
				return err
			}
			return nil
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("review page %d not shown within %s: %w", want, e.cfg.PageTimeout, page.ErrTimeout)
		}
		if err := validate.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// listMarker returns the first review, or the list itself when it has no
// items, together with its current text. marker is nil without a list.
func (e *Engine) listMarker(pg page.Page) (marker page.Element, text string, err error) {
	for _, selector := range []string{e.sel.Item, e.sel.List} {
		marker, err = pg.Query(selector)
		if err != nil {
			return nil, "", err
		}
		if marker != nil {
			text, err = marker.Text()
			return marker, text, err
		}
	}
	return nil, "", nil
}

// awaitResort polls until marker leaves the document or its text changes,
// which shows the list was rendered again in the new order. Without a
// marker the first page wait covers the list.
func (e *Engine) awaitResort(ctx context.Context, marker page.Element, before string) error {
	if marker == nil {
		return nil
	}
	deadline := time.Now().Add(e.cfg.PageTimeout)

	for {
		text, err := marker.Text()
		switch {
		case errors.Is(err, page.ErrDetached):
			return nil
		case err != nil:
			return err
		case text != before:
			return nil
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("review list not re-sorted within %s: %w", e.cfg.PageTimeout, page.ErrTimeout)
		}
		if err := validate.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) countRetries(rc *RunContext, unit string, attempts int) {
	if attempts <= 1 {
		return
	}
	rc.Retries += attempts - 1
	e.metrics.AddRetries(unit, attempts-1)
}

func isDisabled(el page.Element) (bool, error) {
	class, _, err := el.Attribute("class")
	if err != nil {
		return false, err
	}
	for _, c := range strings.Fields(class) {
		if c == "disabled" {
			return true, nil
		}
	}
	aria, _, err := el.Attribute("aria-disabled")
	if err != nil {
		return false, err
	}
	return aria == "true", nil
}

// dropOverlap removes the leading texts of next that repeat the tail of
// collected.
func dropOverlap(collected []models.ReviewRecord, next []string) []string {
	limit := len(next)
	if len(collected) < limit {
		limit = len(collected)
	}

	for k := limit; k > 0; k-- {
		match := true
		tail := collected[len(collected)-k:]
		for i := 0; i < k; i++ {
			if tail[i].Text != next[i] {
				match = false
				break
			}
		}
		if match {
			return next[k:]
		}
	}
	return next
}
