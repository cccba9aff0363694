package retrieval

import (
	"fmt"
	"strings"
	"testing"
)

func chunk(key string, dist float64) RetrievedChunk {
	return RetrievedChunk{Text: "text of " + key, Distance: dist, SourceKey: key}
}

func keys(chunks []RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.SourceKey
	}
	return out
}

func TestDiversify_FirstOccurrenceWins(t *testing.T) {
	in := []RetrievedChunk{
		chunk("A", 0.1),
		chunk("A", 0.2),
		chunk("B", 0.15),
		chunk("C", 0.3),
	}

	got := Diversify(in, 2)
	if strings.Join(keys(got), ",") != "A,B" {
		t.Fatalf("keys = %v, want [A B]", keys(got))
	}
	if got[0].Distance != 0.1 {
		t.Errorf("kept A at distance %v, want 0.1", got[0].Distance)
	}
}

func TestDiversify_Properties(t *testing.T) {
	tests := []struct {
		name string
		in   []RetrievedChunk
		want int
	}{
		{"more distinct than wanted", []RetrievedChunk{chunk("a", 0.5), chunk("b", 0.1), chunk("c", 0.3), chunk("d", 0.2)}, 3},
		{"fewer distinct than wanted", []RetrievedChunk{chunk("a", 0.5), chunk("a", 0.1), chunk("b", 0.3)}, 5},
		{"all same key", []RetrievedChunk{chunk("x", 0.4), chunk("x", 0.2), chunk("x", 0.3)}, 2},
		{"want one", []RetrievedChunk{chunk("a", 0.9), chunk("b", 0.8)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			distinct := map[string]bool{}
			for _, c := range tt.in {
				distinct[DedupKey(c)] = true
			}

			got := Diversify(tt.in, tt.want)
			if len(got) != min(tt.want, len(distinct)) {
				t.Errorf("len = %d, want %d", len(got), min(tt.want, len(distinct)))
			}
			seen := map[string]bool{}
			for i, c := range got {
				k := DedupKey(c)
				if seen[k] {
					t.Errorf("duplicate key %q", k)
				}
				seen[k] = true
				if i > 0 && got[i-1].Distance > c.Distance {
					t.Errorf("not ordered by distance: %v", got)
				}
			}
		})
	}
}

func TestDiversify_StableOnTies(t *testing.T) {
	in := []RetrievedChunk{chunk("first", 0.2), chunk("second", 0.2), chunk("third", 0.2)}

	got := Diversify(in, 2)
	if strings.Join(keys(got), ",") != "first,second" {
		t.Errorf("keys = %v, want input order on ties", keys(got))
	}
}

func TestDiversify_DoesNotMutateInput(t *testing.T) {
	in := []RetrievedChunk{chunk("b", 0.9), chunk("a", 0.1)}
	Diversify(in, 2)
	if in[0].SourceKey != "b" {
		t.Error("input slice was reordered")
	}
}

func TestDiversify_EmptyInput(t *testing.T) {
	got := Diversify(nil, 4)
	if len(got) != 0 {
		t.Errorf("got %d chunks from empty input", len(got))
	}
}

func TestDiversify_WantClampedToOne(t *testing.T) {
	got := Diversify([]RetrievedChunk{chunk("a", 0.3), chunk("b", 0.1)}, 0)
	if len(got) != 1 || got[0].SourceKey != "b" {
		t.Errorf("got %v, want [b]", keys(got))
	}
}

func TestDedupKey_Fallbacks(t *testing.T) {
	long := strings.Repeat("横須賀", 20)
	tests := []struct {
		name string
		in   RetrievedChunk
		want string
	}{
		{"source key field", RetrievedChunk{SourceKey: "a.md:1", Metadata: map[string]any{"doc_id": "d"}}, "src:a.md:1"},
		{"metadata source key", RetrievedChunk{Metadata: map[string]any{"sourceKey": "f.json"}}, "src:f.json"},
		{"doc id", RetrievedChunk{Text: "abc", Metadata: map[string]any{"doc_id": "d7"}}, "doc:d7"},
		{"camel doc id", RetrievedChunk{Text: "abc", Metadata: map[string]any{"docId": 12}}, "doc:12"},
		{"short text", RetrievedChunk{Text: "Navy curry"}, "text:Navy curry"},
		{"long text by runes", RetrievedChunk{Text: long}, "text:" + string([]rune(long)[:40])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupKey(tt.in); got != tt.want {
				t.Errorf("DedupKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiversify_TextPrefixCollapsesNearDuplicates(t *testing.T) {
	base := strings.Repeat("x", 40)
	in := []RetrievedChunk{
		{Text: base + " one", Distance: 0.1},
		{Text: base + " two", Distance: 0.2},
		{Text: "different", Distance: 0.3},
	}
	got := Diversify(in, 3)
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
	if got[1].Text != "different" {
		t.Errorf("second = %q", got[1].Text)
	}
}

func BenchmarkDiversify(b *testing.B) {
	in := make([]RetrievedChunk, 200)
	for i := range in {
		in[i] = chunk(fmt.Sprintf("k%d", i%37), float64(i%50)/50)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Diversify(in, 6)
	}
}
