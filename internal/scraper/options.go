package scraper

import (
	"github.com/maltedev/review-scraper/internal/config"
	"github.com/maltedev/review-scraper/internal/validate"
)

// OptionsFromConfig applies the scraper configuration to DefaultOptions.
func OptionsFromConfig(cfg config.ScraperConfig) Options {
	opts := DefaultOptions()

	opts.ElementTimeout = cfg.ElementTimeout
	opts.Policy = validate.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		MaxBackoff:  cfg.RetryBackoffMax,
	}
	opts.DistributionTolerance = cfg.DistributionTolerance
	opts.AllowedHosts = cfg.AllowedHosts
	opts.DebugDir = cfg.DebugDir

	opts.Reviews.Target = cfg.TargetReviews
	opts.Reviews.ElementTimeout = cfg.ElementTimeout
	opts.Reviews.PageTimeout = cfg.PageTimeout
	opts.Reviews.PollInterval = cfg.PollInterval
	opts.Reviews.Policy = opts.Policy

	return opts
}
