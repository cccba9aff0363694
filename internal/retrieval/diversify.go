package retrieval

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// textKeyRunes is how much of a chunk's text identifies it when it carries
// no source key or document id.
const textKeyRunes = 40

// DedupKey returns the identity used to collapse chunks from the same source:
// the source key, else the metadata doc_id, else the first 40 characters of
// the text.
func DedupKey(c RetrievedChunk) string {
	if c.SourceKey != "" {
		return "src:" + c.SourceKey
	}
	for _, k := range []string{"source_key", "sourceKey"} {
		if v, ok := c.Metadata[k]; ok && v != nil && fmt.Sprint(v) != "" {
			return "src:" + fmt.Sprint(v)
		}
	}
	for _, k := range []string{"doc_id", "docId"} {
		if v, ok := c.Metadata[k]; ok && v != nil && fmt.Sprint(v) != "" {
			return "doc:" + fmt.Sprint(v)
		}
	}
	return "text:" + prefixRunes(c.Text, textKeyRunes)
}

// Diversify picks up to want chunks, closest first, keeping only the first
// chunk seen for each DedupKey. Ties on distance keep input order. When
// nothing survives (empty input or want < 1 after clamping), the first want
// raw candidates are returned instead.
func Diversify(candidates []RetrievedChunk, want int) []RetrievedChunk {
	if want < 1 {
		want = 1
	}

	sorted := make([]RetrievedChunk, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	seen := make(map[string]struct{}, want)
	out := make([]RetrievedChunk, 0, want)
	for _, c := range sorted {
		key := DedupKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) >= want {
			break
		}
	}

	if len(out) == 0 {
		n := min(want, len(candidates))
		return append([]RetrievedChunk(nil), candidates[:n]...)
	}
	return out
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
