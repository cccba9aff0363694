// Package postprocess cleans generated text before it is published.
package postprocess

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "…"

var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
	{"‘", "’"},
	{"`", "`"},
}

// Finalize collapses whitespace, strips wrapping quotes and enforces a
// maximum length of maxChars characters. maxChars <= 0 disables the limit.
// Finalize(Finalize(s, n), n) == Finalize(s, n).
func Finalize(raw string, maxChars int) string {
	s := CollapseWhitespace(raw)
	s = StripWrappingQuotes(s)
	return Truncate(s, maxChars)
}

// CollapseWhitespace replaces every whitespace run with one space and trims
// both ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripWrappingQuotes removes matching quote characters that wrap the whole
// string. Nested layers ("'text'") are removed until none remain.
func StripWrappingQuotes(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, p := range quotePairs {
			if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
				s = strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// Truncate shortens s to at most maxChars characters, ending in Ellipsis.
// The cut backs off to the last space so words stay whole, unless the
// prefix already ends on a word boundary or contains no space at all.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:maxChars-1])
	atBoundary := runes[maxChars-1] == ' '
	if !atBoundary {
		if i := strings.LastIndexByte(cut, ' '); i >= 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " ") + Ellipsis
}
