// internal/match/match_test.go
package match

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"Already normal", "mama gedhara yanavaa", "mama gedhara yanavaa"},
		{"Leading and trailing", "  මම ගෙදර යනවා \n", "මම ගෙදර යනවා"},
		{"Mixed whitespace runs", "a\t\t b\n\n\nc", "a b c"},
		{"Only whitespace", " \t\r\n ", ""},
		{"Empty", "", ""},
		{"Five space run", "mama     gedhara", "mama gedhara"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Normalize(got), "normalization must be idempotent")
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		a, b string
		want float64
	}{
		{"Both empty", "", "", 1.0},
		{"Identical latin", "abc", "abc", 1.0},
		{"Identical target script", "මුදලාලි සීනි කිරනවා", "මුදලාලි සීනි කිරනවා", 1.0},
		{"One empty", "abcd", "", 0.0},
		{"Trailing char differs", "abcdefghijk", "abcdefghijx", 10.0 / 11.0},
		{"Shorter prefix", "abcd", "ab", 0.5},
		{"Order independent", "ab", "abcd", 0.5},
		{"Shifted alignment", "xabcd", "abcd", 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestIsAcceptable(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		actual   string
		expected string
		want     Result
	}{
		{
			name:     "Exact on the canonical sentence",
			actual:   "මුදලාලි සීනි කිරනවා",
			expected: "මුදලාලි සීනි කිරනවා",
			want:     Result{IsMatch: true, Score: 1.0, Strategy: StrategyExact},
		},
		{
			name:     "Exact after whitespace normalization",
			actual:   "  මම   ගෙදර\nයනවා ",
			expected: "මම ගෙදර යනවා",
			want:     Result{IsMatch: true, Score: 1.0, Strategy: StrategyExact},
		},
		{
			name:     "Actual contains expected",
			actual:   "Result: මම ගෙදර යනවා.",
			expected: "මම ගෙදර යනවා",
			want:     Result{IsMatch: true, Score: 0, Strategy: StrategyContainment},
		},
		{
			name:     "Expected contains actual",
			actual:   "මම ගෙදර",
			expected: "මම ගෙදර යනවා",
			want:     Result{IsMatch: true, Score: 7.0 / 12.0, Strategy: StrategyContainment},
		},
		{
			name:     "Fuzzy accepts one trailing difference in eleven",
			actual:   "abcdefghijk",
			expected: "abcdefghijx",
			want:     Result{IsMatch: true, Score: 10.0 / 11.0, Strategy: StrategyFuzzyThreshold},
		},
		{
			name:     "Fuzzy rejects exactly ninety percent",
			actual:   "abcdefghij",
			expected: "abcdefghix",
			want:     Result{IsMatch: false, Score: 0.9, Strategy: StrategyFuzzyThreshold},
		},
		{
			name:     "Unrelated output is rejected",
			actual:   "xyz",
			expected: "මම ගෙදර යනවා",
			want:     Result{IsMatch: false, Score: 0, Strategy: StrategyFuzzyThreshold},
		},
		{
			name:     "Empty output never matches by containment",
			actual:   "",
			expected: "මම ගෙදර යනවා",
			want:     Result{IsMatch: false, Score: 0, Strategy: StrategyFuzzyThreshold},
		},
		{
			name:     "Empty expectation never matches by containment",
			actual:   "මම ගෙදර",
			expected: "  ",
			want:     Result{IsMatch: false, Score: 0, Strategy: StrategyFuzzyThreshold},
		},
		{
			name:     "Both empty is exact",
			actual:   " ",
			expected: "",
			want:     Result{IsMatch: true, Score: 1.0, Strategy: StrategyExact},
		},
	}

	opt := cmpopts.EquateApprox(0, 1e-9)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsAcceptable(tc.actual, tc.expected)
			if diff := cmp.Diff(tc.want, got, opt); diff != "" {
				t.Errorf("IsAcceptable() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContainmentIgnoresScore(t *testing.T) {
	t.Parallel()
	expected := "ක"
	actual := "පෙර " + expected + strings.Repeat(" අමතර", 20)

	got := IsAcceptable(actual, expected)
	assert.True(t, got.IsMatch)
	assert.Equal(t, StrategyContainment, got.Strategy)
	assert.Less(t, got.Score, DefaultThreshold)
}

func TestNewValidator(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultThreshold, NewValidator(0).Threshold)
	assert.Equal(t, DefaultThreshold, NewValidator(1.5).Threshold)

	strict := NewValidator(0.95)
	got := strict.IsAcceptable("abcdefghijk", "abcdefghijx")
	assert.False(t, got.IsMatch, "10/11 does not clear a 0.95 threshold")

	lenient := NewValidator(0.5)
	got = lenient.IsAcceptable("abcd", "abxy")
	assert.False(t, got.IsMatch, "threshold is exclusive")
	got = lenient.IsAcceptable("abcd", "abcy")
	assert.True(t, got.IsMatch)
}

type fuzzPair struct {
	A string
	B string
}

func FuzzValidatorProperties(f *testing.F) {
	f.Add([]byte("mudhalaali siini kiranavaa"))
	f.Add([]byte("  \t මම\n\nගෙදර  "))
	f.Fuzz(func(t *testing.T, data []byte) {
		var pair fuzzPair
		if err := fuzz.NewConsumer(data).GenerateStruct(&pair); err != nil {
			return
		}

		once := Normalize(pair.A)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q", once, twice)
		}

		score := Similarity(pair.A, pair.B)
		if score < 0 || score > 1 {
			t.Fatalf("Similarity out of range: %v", score)
		}
		if score != Similarity(pair.B, pair.A) {
			t.Fatalf("Similarity depends on argument order")
		}
		if pair.A != "" && Similarity(pair.A, pair.A) != 1.0 {
			t.Fatalf("Similarity(s, s) != 1 for %q", pair.A)
		}

		if res := IsAcceptable(pair.A, pair.A); !res.IsMatch || res.Strategy != StrategyExact {
			t.Fatalf("self comparison must be exact, got %+v", res)
		}
	})
}
