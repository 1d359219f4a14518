package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/review-scraper/internal/extract"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/reviews"
	"github.com/maltedev/review-scraper/internal/validate"
)

// ErrInvalidURL is returned for input that is not an absolute http(s) URL
// of an allowed host.
var ErrInvalidURL = errors.New("invalid product url")

// Store persists snapshots. The returned id identifies the product row.
type Store interface {
	Upsert(ctx context.Context, snap *models.Snapshot) (int64, error)
}

type Options struct {
	Selectors             extract.Selectors
	ReviewSelectors       reviews.Selectors
	Reviews               reviews.Config
	ElementTimeout        time.Duration
	Policy                validate.Policy
	DistributionTolerance float64
	AllowedHosts          []string
	DebugDir              string
}

func DefaultOptions() Options {
	return Options{
		Selectors:             extract.DefaultSelectors(),
		ReviewSelectors:       reviews.DefaultSelectors(),
		Reviews:               reviews.DefaultConfig(),
		ElementTimeout:        5 * time.Second,
		Policy:                validate.DefaultPolicy(),
		DistributionTolerance: validate.DefaultTolerance,
	}
}

// Result is a persisted (or, without a store, assembled) snapshot.
type Result struct {
	Snapshot  *models.Snapshot `json:"snapshot"`
	Status    models.Status    `json:"status"`
	Warnings  []string         `json:"warnings,omitempty"`
	ProductID int64            `json:"product_id,omitempty"`
}

type Service struct {
	opener  page.Opener
	store   Store
	opts    Options
	facts   *extract.FactExtractor
	dist    *extract.DistributionExtractor
	images  *extract.ImageExtractor
	engine  *reviews.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService wires the extraction pipeline. store may be nil, in which
// case snapshots are assembled but not persisted.
func NewService(opener page.Opener, store Store, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		opener:  opener,
		store:   store,
		opts:    opts,
		facts:   extract.NewFactExtractor(opts.Selectors),
		dist:    extract.NewDistributionExtractor(opts.Selectors),
		images:  extract.NewImageExtractor(opts.Selectors),
		engine:  reviews.NewEngine(opts.ReviewSelectors, opts.Reviews, logger, m),
		logger:  logger.With("component", "scraper"),
		metrics: m,
		now:     time.Now,
	}
}

// Scrape extracts one product page and persists the snapshot. Only
// *models.IncompleteSnapshotError, the store's error and cancellation of
// ctx are returned as hard failures; every other shortfall is reported in
// the result. A cancelled run is never persisted.
func (s *Service) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()
	productURL, err := s.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("url", productURL)
	log.Info("scrape started")

	res, err := s.scrape(ctx, log, productURL)
	s.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		s.metrics.IncRun("failed")
		s.metrics.IncError(errorType(err))
		log.Error("scrape failed", "error", err)
		return nil, err
	}

	s.metrics.IncRun(string(res.Status))
	log.Info("scrape finished",
		"status", res.Status,
		"reviews", len(res.Snapshot.Reviews),
		"images", len(res.Snapshot.Images),
		"warnings", len(res.Warnings),
		"product_id", res.ProductID,
		"duration", time.Since(start))

	return res, nil
}

func (s *Service) scrape(ctx context.Context, log *slog.Logger, productURL string) (*Result, error) {
	sess, err := s.open(ctx, productURL)
	if err != nil {
		if isCancel(err) {
			return nil, cancelled(productURL, err)
		}
		return nil, &models.IncompleteSnapshotError{URL: productURL, Err: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close session", "error", err)
		}
	}()

	parts := models.Parts{URL: productURL}

	facts, err := s.extractFacts(ctx, sess)
	if err != nil {
		if isCancel(err) {
			return nil, cancelled(productURL, err)
		}
		s.dump(sess, "facts")
		return nil, &models.IncompleteSnapshotError{URL: productURL, Missing: facts.Missing(), Err: err}
	}
	parts.Facts = facts

	parts.Images, err = s.extractImages(ctx, sess)
	if err != nil {
		if isCancel(err) {
			return nil, cancelled(productURL, err)
		}
		s.dump(sess, "images")
		parts.Warnings = append(parts.Warnings, fmt.Sprintf("detail images: %v", err))
	}

	dist, warning, err := s.extractDistribution(ctx, sess)
	parts.Distribution = dist
	if warning != "" {
		parts.Warnings = append(parts.Warnings, warning)
	}

	switch {
	case err != nil && isCancel(err):
		return nil, cancelled(productURL, err)
	case err != nil && !s.reviewsActive(sess):
		s.dump(sess, "reviews")
		parts.Warnings = append(parts.Warnings, fmt.Sprintf("review tab: %v", err))
		parts.ReviewsPartial = true
	default:
		if err != nil {
			parts.Warnings = append(parts.Warnings, fmt.Sprintf("rating distribution: %v", err))
		}
		col := s.engine.Run(ctx, sess)
		parts.Reviews = col.Reviews
		parts.ReviewsPartial = col.Partial
		parts.Warnings = append(parts.Warnings, col.Warnings...)
		if col.Err != nil {
			if isCancel(col.Err) {
				return nil, cancelled(productURL, col.Err)
			}
			s.dump(sess, "pagination")
			parts.Warnings = append(parts.Warnings, fmt.Sprintf("reviews: %v", col.Err))
		}
	}

	snap, err := models.Assemble(parts, s.now())
	if err != nil {
		return nil, err
	}

	res := &Result{Snapshot: snap, Status: snap.Status, Warnings: snap.Warnings}
	if s.store == nil {
		return res, nil
	}

	id, err := s.store.Upsert(ctx, snap)
	if err != nil {
		return nil, err
	}
	s.metrics.IncPersisted()
	res.ProductID = id

	return res, nil
}

// open navigates with retries. Navigation failures are transient until
// the budget is spent.
func (s *Service) open(ctx context.Context, productURL string) (page.Session, error) {
	var sess page.Session
	attempts := 0

	policy := s.opts.Policy
	policy.ReloadOnExhaust = false
	_, err := validate.Run(ctx, policy, func(ctx context.Context, st validate.State) validate.Verdict {
		attempts++
		var err error
		sess, err = s.opener.Open(ctx, productURL)
		if err != nil {
			s.logger.Warn("navigation failed", "url", productURL, "attempt", attempts, "error", err)
		}
		return validate.Classify(err)
	}, nil)
	s.metrics.AddRetries("navigation", attempts-1)

	if err != nil {
		return nil, err
	}
	return sess, nil
}

// extractFacts retries missing mandatory facts, reloading the page once
// when the budget runs out.
func (s *Service) extractFacts(ctx context.Context, sess page.Session) (models.Facts, error) {
	var facts models.Facts
	attempts := 0

	policy := s.opts.Policy
	policy.ReloadOnExhaust = true
	v, err := validate.Run(ctx, policy, func(ctx context.Context, st validate.State) validate.Verdict {
		attempts++
		// Waiting only gives late rendering a chance; absence is judged below.
		_, _ = sess.WaitFor(s.opts.Selectors.Name, s.opts.ElementTimeout)

		f, err := s.facts.Extract(sess)
		if err != nil {
			return validate.Classify(err)
		}
		facts = f
		return validate.Facts(f)
	}, func(ctx context.Context) error {
		s.logger.Warn("reloading page after missing facts", "url", sess.URL())
		return sess.Reload(s.opts.Reviews.PageTimeout)
	})
	s.metrics.AddRetries("facts", attempts-1)

	if err != nil {
		return facts, err
	}
	if v.Kind == validate.Warn {
		s.logger.Debug("facts accepted with warning", "reason", v.Reason)
	}
	return facts, nil
}

func (s *Service) extractImages(ctx context.Context, sess page.Session) ([]string, error) {
	var urls []string
	attempts := 0

	policy := s.opts.Policy
	policy.ReloadOnExhaust = false
	_, err := validate.Run(ctx, policy, func(ctx context.Context, st validate.State) validate.Verdict {
		attempts++
		if err := extract.RevealDetail(sess, s.opts.Selectors, s.opts.ElementTimeout); err != nil {
			return validate.Classify(err)
		}
		found, err := s.images.Extract(sess)
		if err != nil {
			return validate.Classify(err)
		}
		urls = found
		return validate.Images(found)
	}, nil)
	s.metrics.AddRetries("images", attempts-1)

	return urls, err
}

// extractDistribution opens the review tab and reads the histogram. The
// warning is set when an out-of-tolerance distribution was accepted.
func (s *Service) extractDistribution(ctx context.Context, sess page.Session) (models.Distribution, string, error) {
	var dist models.Distribution
	attempts := 0

	policy := s.opts.Policy
	policy.ReloadOnExhaust = false
	v, err := validate.Run(ctx, policy, func(ctx context.Context, st validate.State) validate.Verdict {
		attempts++
		if err := extract.ActivateReviews(sess, s.opts.Selectors, s.opts.ElementTimeout); err != nil {
			return validate.Classify(err)
		}
		d, err := s.dist.Extract(sess)
		if err != nil {
			return validate.Classify(err)
		}
		dist = d
		return validate.Distribution(d, st.Attempt, s.opts.DistributionTolerance)
	}, nil)
	s.metrics.AddRetries("distribution", attempts-1)

	if err != nil {
		return dist, "", err
	}
	if v.Kind == validate.Warn {
		return dist, v.Reason, nil
	}
	return dist, "", nil
}

func (s *Service) reviewsActive(sess page.Session) bool {
	el, err := sess.Query(s.opts.Selectors.ReviewArea)
	return err == nil && el != nil
}

func (s *Service) dump(sess page.Session, stage string) {
	if s.opts.DebugDir == "" {
		return
	}
	d, ok := sess.(page.Debugger)
	if !ok {
		return
	}
	name := fmt.Sprintf("%s_%d", stage, s.now().Unix())
	if err := d.Dump(s.opts.DebugDir, name); err != nil {
		s.logger.Warn("failed to write debug dump", "stage", stage, "error", err)
	}
}

// ValidateURL checks that raw is an absolute http(s) URL of an allowed
// host and returns it trimmed.
func (s *Service) ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if len(s.opts.AllowedHosts) == 0 {
		return raw, nil
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range s.opts.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: host %s is not supported", ErrInvalidURL, u.Hostname())
}

func cancelled(productURL string, err error) error {
	return fmt.Errorf("scrape of %s cancelled: %w", productURL, err)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
