package models

import (
	"fmt"
	"strings"
	"time"
)

// IncompleteSnapshotError reports a mandatory fact that could not be read.
type IncompleteSnapshotError struct {
	URL     string
	Missing []string
	Err     error
}

func (e *IncompleteSnapshotError) Error() string {
	msg := fmt.Sprintf("incomplete snapshot for %s", e.URL)
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompleteSnapshotError) Unwrap() error {
	return e.Err
}

// Parts are the extraction outputs of one run.
type Parts struct {
	URL            string
	Facts          Facts
	Distribution   Distribution
	Images         []string
	Reviews        []ReviewRecord
	ReviewsPartial bool
	Warnings       []string
}

// Assemble combines parts into a snapshot stamped with now.
func Assemble(parts Parts, now time.Time) (*Snapshot, error) {
	if missing := parts.Facts.Missing(); len(missing) > 0 {
		return nil, &IncompleteSnapshotError{URL: parts.URL, Missing: missing}
	}

	warnings := append([]string(nil), parts.Warnings...)
	factsPartial := false

	if parts.Facts.ReviewCount == nil {
		factsPartial = true
		warnings = append(warnings, "review count not found")
	}
	if len(parts.Distribution) == 0 {
		factsPartial = true
		warnings = append(warnings, "rating distribution not found")
	} else if !parts.Distribution.Complete() {
		factsPartial = true
		warnings = append(warnings, "rating distribution incomplete")
	}
	if len(parts.Images) == 0 {
		factsPartial = true
		warnings = append(warnings, "no detail images found")
	}
	if parts.ReviewsPartial {
		warnings = append(warnings, fmt.Sprintf("review collection stopped early after %d reviews", len(parts.Reviews)))
	}
	if rc := parts.Facts.ReviewCount; rc != nil && len(parts.Reviews) > *rc {
		warnings = append(warnings, fmt.Sprintf("collected %d reviews but page reports %d", len(parts.Reviews), *rc))
	}

	status := StatusComplete
	switch {
	case factsPartial:
		status = StatusPartialFacts
	case parts.ReviewsPartial:
		status = StatusPartialReviews
	}

	images := parts.Images
	if images == nil {
		images = []string{}
	}
	reviews := parts.Reviews
	if reviews == nil {
		reviews = []ReviewRecord{}
	}

	return &Snapshot{
		URL:          parts.URL,
		Name:         *parts.Facts.Name,
		Price:        *parts.Facts.Price,
		Rating:       *parts.Facts.Rating,
		ReviewCount:  parts.Facts.ReviewCount,
		Distribution: parts.Distribution,
		Images:       images,
		Reviews:      reviews,
		Status:       status,
		Warnings:     warnings,
		ScrapedAt:    now.UTC(),
	}, nil
}
