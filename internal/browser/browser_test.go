package browser

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"

	"github.com/maltedev/review-scraper/internal/page"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "ko-KR", opts.Locale)
	assert.Equal(t, "Asia/Seoul", opts.TimezoneID)
}

func TestContextOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtraHeaders = map[string]string{"DNT": "1"}
	b := &Browser{opts: opts}

	co := b.contextOptions()

	assert.Equal(t, "ko-KR,ko;q=0.9,en;q=0.8", co.ExtraHttpHeaders["Accept-Language"])
	assert.Equal(t, "1", co.ExtraHttpHeaders["DNT"])
	assert.Len(t, opts.ExtraHeaders, 1)
	assert.Equal(t, "Asia/Seoul", *co.TimezoneId)
	assert.Equal(t, 1920, co.Viewport.Width)
}

func TestMapError(t *testing.T) {
	other := errors.New("net::ERR_NAME_NOT_RESOLVED")

	tests := []struct {
		name string
		err  error
		is   error
	}{
		{name: "nil", err: nil, is: nil},
		{name: "timeout", err: fmt.Errorf("waiting for locator: %w", playwright.ErrTimeout), is: page.ErrTimeout},
		{name: "detached", err: errors.New("elementHandle.click: Element is not attached to the DOM"), is: page.ErrDetached},
		{name: "target closed", err: fmt.Errorf("click: %w", playwright.ErrTargetClosed), is: page.ErrDetached},
		{name: "other", err: other, is: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.is == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.is)
		})
	}
}
