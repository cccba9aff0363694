package docs

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 800

var blankLines = regexp.MustCompile(`\n\s*\n`)

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range blankLines.Split(strings.ReplaceAll(s, "\r\n", "\n"), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunk packs whole paragraphs into chunks of at most size characters.
// A paragraph longer than size is split at word boundaries; a single word
// longer than size becomes its own chunk.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	add := func(piece string, sep string) {
		n := utf8.RuneCountInString(piece)
		if curLen > 0 && curLen+utf8.RuneCountInString(sep)+n > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += utf8.RuneCountInString(sep)
		}
		cur.WriteString(piece)
		curLen += n
	}

	for _, p := range splitParagraphs(text) {
		if utf8.RuneCountInString(p) <= size {
			add(p, "\n\n")
			continue
		}
		flush()
		for _, w := range strings.Fields(p) {
			add(w, " ")
		}
		flush()
	}
	flush()
	return chunks
}
