package models

import (
	"time"
)

type Status string

const (
	StatusComplete       Status = "complete"
	StatusPartialReviews Status = "partial_reviews"
	StatusPartialFacts   Status = "partial_facts"
)

// Stars lists the distribution buckets in display order.
var Stars = []int{5, 4, 3, 2, 1}

// Facts are the single-valued product facts. A nil field was not found
// on the page or could not be parsed.
type Facts struct {
	Name        *string  `json:"name,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
}

// Missing returns the names of the absent mandatory facts.
func (f Facts) Missing() []string {
	var missing []string
	if f.Name == nil || *f.Name == "" {
		missing = append(missing, "name")
	}
	if f.Price == nil {
		missing = append(missing, "price")
	}
	if f.Rating == nil {
		missing = append(missing, "rating")
	}
	return missing
}

// Distribution maps a star bucket (1-5) to the percentage of ratings.
type Distribution map[int]float64

// Complete reports whether every bucket is present.
func (d Distribution) Complete() bool {
	for _, s := range Stars {
		if _, ok := d[s]; !ok {
			return false
		}
	}
	return true
}

func (d Distribution) Sum() float64 {
	var sum float64
	for _, v := range d {
		sum += v
	}
	return sum
}

type ReviewRecord struct {
	Text string `json:"text"`
	Rank int    `json:"rank"`
}

// Snapshot is everything captured from one product page.
type Snapshot struct {
	URL          string         `json:"url"`
	Name         string         `json:"name"`
	Price        float64        `json:"price"`
	Rating       float64        `json:"rating"`
	ReviewCount  *int           `json:"review_count,omitempty"`
	Distribution Distribution   `json:"rating_distribution,omitempty"`
	Images       []string       `json:"images"`
	Reviews      []ReviewRecord `json:"reviews"`
	Status       Status         `json:"status"`
	Warnings     []string       `json:"warnings,omitempty"`
	ScrapedAt    time.Time      `json:"scraped_at"`
}

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

func IntPtr(i int) *int { return &i }
