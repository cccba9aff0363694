package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search backends.
// The current implementation uses SQLite with brute-force cosine similarity.
type VectorStore interface {
	// Insert adds records.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to topK records closest to vector, ordered by
	// ascending distance.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDoc removes every record belonging to the given document.
	DeleteByDoc(ctx context.Context, docID string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record represents a row in the vector store.
type Record struct {
	ID         string
	DocID      string
	SourceKey  string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	Metadata   string // JSON object stored as text
	CreatedAt  time.Time
}

// ScoredRecord is a Record with its distance to the query attached.
// Distance is 1 - cosine similarity, so lower is closer.
type ScoredRecord struct {
	Record
	Distance float64
}
