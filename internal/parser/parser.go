// Package parser reads numbers out of rendered text such as "19,900원",
// "(1.234건)", "70%" or "1.299,00 €".
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`\d[\d.,]*`)

// ParseNumber returns the first number in s. Digit grouping with either
// ',' or '.' is accepted, as is surrounding currency or unit text. ok is
// false when s holds no readable number.
func ParseNumber(s string) (float64, bool) {
	raw := numberPattern.FindString(s)
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(normalize(raw), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseInt is ParseNumber truncated to an integer.
func ParseInt(s string) (int, bool) {
	v, ok := ParseNumber(s)
	if !ok || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// ParsePercent reads a percentage such as "70%" or "12,5 %".
func ParsePercent(s string) (float64, bool) {
	return ParseNumber(s)
}

// normalize rewrites a digit run into strconv form.
func normalize(raw string) string {
	lastComma := strings.LastIndex(raw, ",")
	lastDot := strings.LastIndex(raw, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return strings.Replace(strings.ReplaceAll(raw, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(raw, ",", "")
	case lastComma >= 0:
		return single(raw, ",")
	case lastDot >= 0:
		return single(raw, ".")
	default:
		return raw
	}
}

// single handles a run that uses only one separator kind.
func single(raw, sep string) string {
	if strings.Count(raw, sep) > 1 {
		return strings.ReplaceAll(raw, sep, "")
	}

	idx := strings.Index(raw, sep)
	head, tail := raw[:idx], raw[idx+1:]
	if len(tail) == 3 && len(head) <= 3 && head != "0" {
		return head + tail
	}
	return head + "." + tail
}
