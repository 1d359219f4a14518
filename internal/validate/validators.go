package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/maltedev/review-scraper/internal/models"
)

// ErrBlankReview marks a review whose text block rendered without text.
var ErrBlankReview = errors.New("empty review text")

// DefaultTolerance is the accepted deviation of a distribution sum from 100.
const DefaultTolerance = 2.0

// Facts retries while a mandatory fact is absent. A missing review count
// is only a warning.
func Facts(f models.Facts) Verdict {
	if missing := f.Missing(); len(missing) > 0 {
		return Retryable("missing "+strings.Join(missing, ", "), nil)
	}
	if f.ReviewCount == nil {
		return Warning("review count not found")
	}
	return Accept()
}

// Distribution checks that every bucket is present and within [0,100] and
// that the buckets sum to 100 within tolerance. Out-of-tolerance values
// are retried on the first attempt and accepted with a warning afterwards.
func Distribution(d models.Distribution, attempt int, tolerance float64) Verdict {
	if len(d) == 0 {
		return Retryable("rating distribution not rendered", nil)
	}

	var missing []string
	for _, s := range models.Stars {
		if _, ok := d[s]; !ok {
			missing = append(missing, fmt.Sprintf("%d", s))
		}
	}
	if len(missing) > 0 {
		return Retryable("rating distribution missing stars "+strings.Join(missing, ","), nil)
	}

	var problem string
	for _, s := range models.Stars {
		if v := d[s]; v < 0 || v > 100 {
			problem = fmt.Sprintf("%d-star percentage %.1f out of range", s, v)
			break
		}
	}
	if problem == "" {
		if sum := d.Sum(); math.Abs(sum-100) > tolerance {
			problem = fmt.Sprintf("rating distribution sums to %.1f", sum)
		}
	}

	switch {
	case problem == "":
		return Accept()
	case attempt <= 1:
		return Retryable(problem, nil)
	default:
		return Warning(problem)
	}
}

// Images retries an empty image list.
func Images(urls []string) Verdict {
	if len(urls) == 0 {
		return Retryable("no detail images found", nil)
	}
	return Accept()
}

// ReviewPage retries a page whose text could not be read or whose text
// blocks are still blank.
func ReviewPage(texts []string, err error) Verdict {
	if err != nil {
		return Classify(err)
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return Retryable("empty review text", ErrBlankReview)
		}
	}
	return Accept()
}
