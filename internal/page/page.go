// Package page describes the rendered-page capabilities the extractors and
// the review engine depend on. The browser package implements them with
// Playwright and pagetest implements them over static HTML.
package page

import (
	"context"
	"time"
)

// Element is a handle to a node of the rendered document.
type Element interface {
	// Text returns the trimmed text content of the element. It fails with
	// ErrDetached once the node has been removed from the document.
	Text() (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	// QueryAll returns descendants matching selector. No match is an empty slice.
	QueryAll(selector string) ([]Element, error)
	Click() error
}

// Page is a rendered document that is ready for querying.
type Page interface {
	URL() string
	// WaitFor blocks until selector matches or timeout elapses, in which
	// case it returns an *ElementNotFoundError.
	WaitFor(selector string, timeout time.Duration) (Element, error)
	// Query returns the first match or nil when nothing matches.
	Query(selector string) (Element, error)
	// QueryAll returns every match. No match is an empty slice, not an error.
	QueryAll(selector string) ([]Element, error)
	// Scroll moves the viewport to fraction of the document height.
	Scroll(fraction float64) error
	// Reload reloads the current document and waits for DOMContentLoaded.
	Reload(timeout time.Duration) error
}

// Session is a page scoped to one scrape run. Close must always be called.
type Session interface {
	Page
	Close() error
}

// Opener navigates to a URL and returns a ready session.
type Opener interface {
	Open(ctx context.Context, url string) (Session, error)
}

// Debugger is implemented by sessions that can persist diagnostics.
type Debugger interface {
	Dump(dir, name string) error
}
