package page

import (
	"errors"
	"fmt"
	"time"
)

// ErrDetached reports a reference to an element that left the document.
var ErrDetached = errors.New("element detached from document")

// ErrTimeout reports a wait that did not complete in time.
var ErrTimeout = errors.New("timed out")

// NavigationError indicates the page could not be reached or did not load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ElementNotFoundError indicates a selector matched nothing within the wait.
type ElementNotFoundError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("element %q not found after %s", e.Selector, e.Timeout)
	}
	return fmt.Sprintf("element %q not found", e.Selector)
}

func (e *ElementNotFoundError) Unwrap() error {
	if e.Err == nil {
		return ErrTimeout
	}
	return e.Err
}
