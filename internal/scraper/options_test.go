package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/review-scraper/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.ScraperConfig{
		TargetReviews:         12,
		PageTimeout:           20 * time.Second,
		ElementTimeout:        3 * time.Second,
		PollInterval:          100 * time.Millisecond,
		MaxAttempts:           4,
		RetryBackoff:          time.Second,
		RetryBackoffMax:       8 * time.Second,
		DistributionTolerance: 1.5,
		AllowedHosts:          []string{"oliveyoung.co.kr"},
		DebugDir:              "/tmp/dumps",
	})

	assert.Equal(t, 12, opts.Reviews.Target)
	assert.Equal(t, 50, opts.Reviews.MaxPages)
	assert.Equal(t, 20*time.Second, opts.Reviews.PageTimeout)
	assert.Equal(t, 3*time.Second, opts.ElementTimeout)
	assert.Equal(t, 3*time.Second, opts.Reviews.ElementTimeout)
	assert.Equal(t, 4, opts.Policy.MaxAttempts)
	assert.Equal(t, opts.Policy, opts.Reviews.Policy)
	assert.False(t, opts.Policy.ReloadOnExhaust)
	assert.Equal(t, 1.5, opts.DistributionTolerance)
	assert.Equal(t, []string{"oliveyoung.co.kr"}, opts.AllowedHosts)
	assert.Equal(t, "/tmp/dumps", opts.DebugDir)
}
