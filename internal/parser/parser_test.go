package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{"comma grouping", "19,900", 19900, true},
		{"won suffix", "19,900원", 19900, true},
		{"decimal rating", "4.6", 4.6, true},
		{"european price", "1.299,00 €", 1299, true},
		{"us price", "$1,299.99", 1299.99, true},
		{"dot grouping repeated", "1.234.567", 1234567, true},
		{"comma decimal", "12,5", 12.5, true},
		{"leading zero decimal", "0.123", 0.123, true},
		{"trailing separator", "70.", 70, true},
		{"parenthesised count", "(1,234건)", 1234, true},
		{"plain", "152", 152, true},
		{"empty", "", 0, false},
		{"no digits", "가격 문의", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestParseInt(t *testing.T) {
	got, ok := ParseInt("리뷰 152건")
	assert.True(t, ok)
	assert.Equal(t, 152, got)

	_, ok = ParseInt("none")
	assert.False(t, ok)
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"70%", 70},
		{" 3 % ", 3},
		{"12,5%", 12.5},
		{"100%", 100},
	}

	for _, tt := range tests {
		got, ok := ParsePercent(tt.input)
		assert.True(t, ok, tt.input)
		assert.InDelta(t, tt.want, got, 0.0001, tt.input)
	}

	_, ok := ParsePercent("%")
	assert.False(t, ok)
}
