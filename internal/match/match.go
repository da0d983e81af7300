// Package match decides whether an observed transliteration is an acceptable
// rendering of the expected one.
package match

import (
	"strings"
)

// DefaultThreshold is the fuzzy similarity a candidate must strictly exceed.
const DefaultThreshold = 0.90

// Strategy names the acceptance rule that decided a comparison.
type Strategy string

const (
	StrategyExact          Strategy = "exact"
	StrategyContainment    Strategy = "containment"
	StrategyFuzzyThreshold Strategy = "fuzzy_threshold"
)

// Result is the outcome of comparing an observed output with an expected one.
// When nothing accepts, Strategy is StrategyFuzzyThreshold, the last rule tried.
type Result struct {
	IsMatch  bool     `json:"is_match"`
	Score    float64  `json:"similarity_score"`
	Strategy Strategy `json:"strategy"`
}

// Normalize collapses every Unicode whitespace run to a single space and
// trims the ends. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores two strings by positional rune agreement: the number of
// indices where both hold the same rune, over the length of the longer one.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	longer, shorter := []rune(a), []rune(b)
	if len(longer) < len(shorter) {
		longer, shorter = shorter, longer
	}
	if len(longer) == 0 {
		return 1.0
	}

	same := 0
	for i, r := range shorter {
		if longer[i] == r {
			same++
		}
	}
	return float64(same) / float64(len(longer))
}

// Validator applies the exact, containment and fuzzy rules in order.
type Validator struct {
	Threshold float64
}

// NewValidator returns a Validator. A threshold outside (0, 1] selects
// DefaultThreshold.
func NewValidator(threshold float64) *Validator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Validator{Threshold: threshold}
}

// IsAcceptable reports whether actual is an acceptable rendering of expected.
func (v *Validator) IsAcceptable(actual, expected string) Result {
	a, e := Normalize(actual), Normalize(expected)

	if a == e {
		return Result{IsMatch: true, Score: 1.0, Strategy: StrategyExact}
	}

	score := Similarity(a, e)

	// Containment either way tolerates surrounding chrome text in the
	// output element and truncated expectations. The empty string is a
	// substring of everything, so it never qualifies.
	if a != "" && e != "" && (strings.Contains(a, e) || strings.Contains(e, a)) {
		return Result{IsMatch: true, Score: score, Strategy: StrategyContainment}
	}

	return Result{IsMatch: score > v.Threshold, Score: score, Strategy: StrategyFuzzyThreshold}
}

var defaultValidator = NewValidator(DefaultThreshold)

// IsAcceptable compares with the default threshold.
func IsAcceptable(actual, expected string) Result {
	return defaultValidator.IsAcceptable(actual, expected)
}
