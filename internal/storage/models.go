package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one source file (or ingested payload) that was chunked into
// context_vectors rows.
type Document struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // relative file path or caller-supplied source name
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content,omitempty"`
	Format     string    `json:"format"` // "json", "yaml", "markdown", "text", "html", "pdf"
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Generation records one answered /rag/query.
type Generation struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Question    string    `json:"question"`
	OutputStyle string    `json:"output_style"`
	Model       string    `json:"model"`
	Answer      string    `json:"answer"`
	SourceKeys  []string  `json:"source_keys"` // dedup keys of the context chunks, in prompt order
}
