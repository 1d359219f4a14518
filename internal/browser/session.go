package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/review-scraper/internal/page"
)

// Session adapts a Playwright page to page.Session.
type Session struct {
	page    playwright.Page
	context playwright.BrowserContext
	logger  *slog.Logger
}

func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) WaitFor(selector string, timeout time.Duration) (page.Element, error) {
	h, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, &page.ElementNotFoundError{Selector: selector, Timeout: timeout}
		}
		return nil, mapError(err)
	}
	if h == nil {
		return nil, &page.ElementNotFoundError{Selector: selector, Timeout: timeout}
	}
	return &element{handle: h}, nil
}

func (s *Session) Query(selector string) (page.Element, error) {
	h, err := s.page.QuerySelector(selector)
	if err != nil {
		return nil, mapError(err)
	}
	if h == nil {
		return nil, nil
	}
	return &element{handle: h}, nil
}

func (s *Session) QueryAll(selector string) ([]page.Element, error) {
	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, mapError(err)
	}
	return wrap(handles), nil
}

func (s *Session) Scroll(fraction float64) error {
	_, err := s.page.Evaluate(`f => window.scrollTo(0, document.body.scrollHeight * f)`, fraction)
	return mapError(err)
}

func (s *Session) Reload(timeout time.Duration) error {
	_, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return &page.NavigationError{URL: s.page.URL(), Err: mapError(err)}
	}
	return nil
}

// Dump writes a full-page screenshot and the current HTML to dir.
func (s *Session) Dump(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug dir: %w", err)
	}

	shot := filepath.Join(dir, name+".png")
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(shot),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}

	html, err := s.page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".html"), []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write page content: %w", err)
	}

	s.logger.Debug("debug dump written", "dir", dir, "name", name)
	return nil
}

func (s *Session) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}

type element struct {
	handle playwright.ElementHandle
}

func (e *element) Text() (string, error) {
	v, err := e.handle.Evaluate(`el => el.isConnected ? el.textContent : null`)
	if err != nil {
		return "", mapError(err)
	}
	text, ok := v.(string)
	if !ok {
		return "", page.ErrDetached
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attribute(name string) (string, bool, error) {
	v, err := e.handle.Evaluate(`(el, name) => el.getAttribute(name)`, name)
	if err != nil {
		return "", false, mapError(err)
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (e *element) QueryAll(selector string) ([]page.Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, mapError(err)
	}
	return wrap(handles), nil
}

func (e *element) Click() error {
	return mapError(e.handle.Click())
}

func wrap(handles []playwright.ElementHandle) []page.Element {
	out := make([]page.Element, len(handles))
	for i, h := range handles {
		out[i] = &element{handle: h}
	}
	return out
}

// mapError translates Playwright failures into the page error kinds.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", page.ErrTimeout, err)
	}
	if isDetached(err) {
		return fmt.Errorf("%w: %v", page.ErrDetached, err)
	}
	return err
}

func isDetached(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not attached to the DOM") ||
		strings.Contains(msg, "Element is detached") ||
		errors.Is(err, playwright.ErrTargetClosed)
}
