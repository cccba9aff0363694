package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
)

// RetrievedChunk is a passage returned by similarity search. Distance is
// lower for closer matches.
type RetrievedChunk struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Distance  float64        `json:"distance"`
	SourceKey string         `json:"source_key"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns up to topK chunks, closest first.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	return scoredToChunks(scored), nil
}

// Count reports how many chunks the store holds.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

func scoredToChunks(scored []ScoredRecord) []RetrievedChunk {
	chunks := make([]RetrievedChunk, len(scored))
	for i, s := range scored {
		chunks[i] = RetrievedChunk{
			ID:        s.ID,
			Text:      s.TextChunk,
			Distance:  s.Distance,
			SourceKey: s.SourceKey,
			Metadata:  decodeMetadata(s.ID, s.Metadata),
		}
		if _, ok := chunks[i].Metadata["doc_id"]; !ok && s.DocID != "" {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = make(map[string]any, 1)
			}
			chunks[i].Metadata["doc_id"] = s.DocID
		}
	}
	return chunks
}

func decodeMetadata(id, raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		slog.Warn("ignoring unreadable chunk metadata", "id", id, "error", err)
		return nil
	}
	return m
}
