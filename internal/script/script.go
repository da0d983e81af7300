// Package script identifies text written in a target writing system by its
// reserved Unicode block.
package script

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Range is an inclusive block of code points.
type Range struct {
	Lo rune
	Hi rune
}

// Sinhala is the Unicode Sinhala block.
var Sinhala = Range{Lo: 0x0D80, Hi: 0x0DFF}

// ParseRange builds a Range from hex bounds such as "0D80" or "U+0DFF".
func ParseRange(lo, hi string) (Range, error) {
	l, err := parseCodePoint(lo)
	if err != nil {
		return Range{}, fmt.Errorf("invalid lower bound %q: %w", lo, err)
	}
	h, err := parseCodePoint(hi)
	if err != nil {
		return Range{}, fmt.Errorf("invalid upper bound %q: %w", hi, err)
	}
	if l > h {
		return Range{}, fmt.Errorf("lower bound %U exceeds upper bound %U", l, h)
	}
	return Range{Lo: l, Hi: h}, nil
}

func parseCodePoint(s string) (rune, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "U+"), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	if v > unicode.MaxRune {
		return 0, fmt.Errorf("beyond the Unicode range")
	}
	return rune(v), nil
}

// Contains reports whether s holds at least one code point of the block.
func (r Range) Contains(s string) bool {
	for _, c := range s {
		if c >= r.Lo && c <= r.Hi {
			return true
		}
	}
	return false
}

func (r Range) String() string {
	return fmt.Sprintf("%U-%U", r.Lo, r.Hi)
}

// MaxWhitespaceRun returns the length of the longest run of consecutive
// whitespace runes in s.
func MaxWhitespaceRun(s string) int {
	longest, current := 0, 0
	for _, c := range s {
		if unicode.IsSpace(c) {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}
