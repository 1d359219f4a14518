package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scrape runs.
type Metrics struct {
	Registry       *prometheus.Registry
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	ReviewsTotal   prometheus.Counter
	PagesTotal     prometheus.Counter
	RetriesTotal   *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	PersistedTotal prometheus.Counter
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Scrape runs by completion status.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall time of a scrape run from open to persist.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_reviews_collected_total",
			Help: "Reviews collected across all runs.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_review_pages_total",
			Help: "Review pages extracted across all runs.",
		},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Retry attempts by extraction unit.",
		},
		[]string{"unit"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Scraper errors by type.",
		},
		[]string{"error_type"},
	)
	persisted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_snapshots_persisted_total",
			Help: "Snapshots written to the store.",
		},
	)

	registry.MustRegister(runs, duration, reviews, pages, retries, errorsTotal, persisted)

	return &Metrics{
		Registry:       registry,
		RunsTotal:      runs,
		RunDuration:    duration,
		ReviewsTotal:   reviews,
		PagesTotal:     pages,
		RetriesTotal:   retries,
		ErrorsTotal:    errorsTotal,
		PersistedTotal: persisted,
	}
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// ObserveDuration records a run duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddRetries counts n retries of unit.
func (m *Metrics) AddRetries(unit string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetriesTotal.WithLabelValues(unit).Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncPersisted() {
	if m == nil {
		return
	}
	m.PersistedTotal.Inc()
}
