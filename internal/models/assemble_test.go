package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeParts() Parts {
	return Parts{
		URL: "https://shop.example/p/123",
		Facts: Facts{
			Name:        StringPtr("Cream A"),
			Price:       FloatPtr(19900),
			Rating:      FloatPtr(4.6),
			ReviewCount: IntPtr(152),
		},
		Distribution: Distribution{5: 70, 4: 20, 3: 5, 2: 3, 1: 2},
		Images:       []string{"https://img.example/1.jpg"},
		Reviews:      []ReviewRecord{{Text: "great", Rank: 1}, {Text: "good", Rank: 2}},
	}
}

func TestAssemble_Complete(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))

	snap, err := Assemble(completeParts(), now)
	require.NoError(t, err)

	assert.Equal(t, "Cream A", snap.Name)
	assert.Equal(t, 19900.0, snap.Price)
	assert.Equal(t, 4.6, snap.Rating)
	assert.Equal(t, 152, *snap.ReviewCount)
	assert.Equal(t, StatusComplete, snap.Status)
	assert.Empty(t, snap.Warnings)
	assert.True(t, snap.ScrapedAt.Equal(now))
	assert.Equal(t, time.UTC, snap.ScrapedAt.Location())
}

func TestAssemble_MissingMandatoryFact(t *testing.T) {
	parts := completeParts()
	parts.Facts.Price = nil
	parts.Facts.Rating = nil

	snap, err := Assemble(parts, time.Now())
	assert.Nil(t, snap)

	var incomplete *IncompleteSnapshotError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"price", "rating"}, incomplete.Missing)
	assert.Contains(t, err.Error(), "missing price, rating")
}

func TestAssemble_Status(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Parts)
		status  Status
		warning string
	}{
		{
			name:    "reviews partial",
			mutate:  func(p *Parts) { p.ReviewsPartial = true },
			status:  StatusPartialReviews,
			warning: "review collection stopped early after 2 reviews",
		},
		{
			name:    "no images",
			mutate:  func(p *Parts) { p.Images = nil },
			status:  StatusPartialFacts,
			warning: "no detail images found",
		},
		{
			name:    "distribution missing a bucket",
			mutate:  func(p *Parts) { delete(p.Distribution, 1) },
			status:  StatusPartialFacts,
			warning: "rating distribution incomplete",
		},
		{
			name:    "review count missing",
			mutate:  func(p *Parts) { p.Facts.ReviewCount = nil },
			status:  StatusPartialFacts,
			warning: "review count not found",
		},
		{
			name: "facts partial wins over reviews partial",
			mutate: func(p *Parts) {
				p.Distribution = nil
				p.ReviewsPartial = true
			},
			status:  StatusPartialFacts,
			warning: "rating distribution not found",
		},
		{
			name:    "more reviews than reported",
			mutate:  func(p *Parts) { p.Facts.ReviewCount = IntPtr(1) },
			status:  StatusComplete,
			warning: "collected 2 reviews but page reports 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := completeParts()
			tt.mutate(&parts)

			snap, err := Assemble(parts, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.status, snap.Status)
			assert.Contains(t, snap.Warnings, tt.warning)
		})
	}
}

func TestAssemble_KeepsCallerWarnings(t *testing.T) {
	parts := completeParts()
	parts.Warnings = []string{"sort control unavailable"}
	parts.Images = nil

	snap, err := Assemble(parts, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "sort control unavailable", snap.Warnings[0])
	assert.NotNil(t, snap.Images)
	assert.Len(t, parts.Warnings, 1)
}

func TestDistribution(t *testing.T) {
	d := Distribution{5: 70, 4: 20, 3: 5, 2: 3, 1: 2}
	assert.True(t, d.Complete())
	assert.InDelta(t, 100, d.Sum(), 0.0001)

	delete(d, 3)
	assert.False(t, d.Complete())
}
