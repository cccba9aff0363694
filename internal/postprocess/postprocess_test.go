package postprocess

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFinalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"truncates at word", "The quick brown fox jumps", 10, "The quick…"},
		{"backs off mid-word", "The quick brown fox jumps", 12, "The quick…"},
		{"fits untouched", "Good morning, Yokosuka!", 280, "Good morning, Yokosuka!"},
		{"exact length untouched", "abcde", 5, "abcde"},
		{"collapses whitespace", "  Good\n\nmorning\t  all  ", 100, "Good morning all"},
		{"strips straight quotes", `"Good evening!"`, 100, "Good evening!"},
		{"strips curly quotes", "“Good evening!”", 100, "Good evening!"},
		{"strips single curly", "‘Hi’", 100, "Hi"},
		{"strips backticks", "`Hi there`", 100, "Hi there"},
		{"strips nested quotes", `"'Hi'"`, 100, "Hi"},
		{"keeps unmatched quote", `"Hi`, 100, `"Hi`},
		{"keeps inner quotes", `He said "hi" today`, 100, `He said "hi" today`},
		{"no limit", "word word word", 0, "word word word"},
		{"negative limit", "word word word", -1, "word word word"},
		{"single long word hard cut", "Supercalifragilistic", 6, "Super…"},
		{"counts runes", "横須賀の朝はとても気持ちがいい", 5, "横須賀の…"},
		{"limit one", "hello world", 1, "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Finalize(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("Finalize(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if tt.max > 0 && utf8.RuneCountInString(got) > tt.max {
				t.Errorf("result %q longer than %d", got, tt.max)
			}
		})
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	inputs := []string{
		"The quick brown fox jumps over the lazy dog",
		`  "“Quoted”   and   spaced"  `,
		"Good morning Yokosuka! ☀️ Sunny skies over Mikasa Park today. #Yokosuka #Kanagawa",
		strings.Repeat("word ", 100),
		"`'\"deep\"'`",
		"x",
		"",
		"'''",
	}
	for _, in := range inputs {
		for _, n := range []int{1, 2, 5, 10, 20, 50, 280} {
			once := Finalize(in, n)
			twice := Finalize(once, n)
			if once != twice {
				t.Errorf("not idempotent for %q, %d: %q -> %q", in, n, once, twice)
			}
		}
	}
}

func TestStripWrappingQuotes_OnlyQuotes(t *testing.T) {
	if got := StripWrappingQuotes(`""`); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := StripWrappingQuotes(`"`); got != `"` {
		t.Errorf("got %q, want lone quote kept", got)
	}
}
