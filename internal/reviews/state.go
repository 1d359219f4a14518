package reviews

import (
	"fmt"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
)

type State int

const (
	StateInit State = iota
	StateSortApplied
	StatePageLoaded
	StateExtracting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSortApplied:
		return "sort_applied"
	case StatePageLoaded:
		return "page_loaded"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type SortMode string

const (
	SortDefault SortMode = "default"
	SortHelpful SortMode = "helpful"
)

// RunContext is the mutable state of one collection run.
type RunContext struct {
	Page        page.Page
	State       State
	SortMode    SortMode
	CurrentPage int
	Pages       int
	Target      int
	Collected   []models.ReviewRecord
	Retries     int
	Warnings    []string
	Err         error

	// afterRetry marks a page reached by a retried transition.
	afterRetry bool
}

func newRunContext(pg page.Page, target int) *RunContext {
	return &RunContext{
		Page:     pg,
		State:    StateInit,
		SortMode: SortDefault,
		Target:   target,
	}
}

func (rc *RunContext) fail(err error) {
	rc.Err = err
	rc.State = StateFailed
}

func (rc *RunContext) warn(err error) {
	rc.Warnings = append(rc.Warnings, err.Error())
}

func (rc *RunContext) warnf(format string, args ...any) {
	rc.Warnings = append(rc.Warnings, fmt.Sprintf(format, args...))
}

func (rc *RunContext) collection() *Collection {
	reviews := rc.Collected
	if reviews == nil {
		reviews = []models.ReviewRecord{}
	}
	return &Collection{
		Reviews:  reviews,
		SortMode: rc.SortMode,
		Pages:    rc.Pages,
		Retries:  rc.Retries,
		Warnings: rc.Warnings,
		Partial:  rc.State == StateFailed,
		Err:      rc.Err,
	}
}
