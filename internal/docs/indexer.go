package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/localtalk/internal/retrieval"
	"github.com/kalambet/localtalk/internal/storage"
)

// Embedder produces one vector per text. *retrieval.Embedder satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore records indexed documents. *storage.Store satisfies it.
type DocumentStore interface {
	SaveDocument(doc storage.Document) error
	ClearDocuments() error
}

// Stats summarizes a reindex.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Files     int `json:"files"`
}

// Indexer turns documents into context_vectors rows.
type Indexer struct {
	root      string
	embedder  Embedder
	vectors   retrieval.VectorStore
	docs      DocumentStore
	chunkSize int
	logger    *slog.Logger
}

// NewIndexer creates an Indexer for the docs directory root.
func NewIndexer(root string, embedder Embedder, vectors retrieval.VectorStore, docs DocumentStore) *Indexer {
	return &Indexer{
		root:      root,
		embedder:  embedder,
		vectors:   vectors,
		docs:      docs,
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
	}
}

// Root returns the docs directory.
func (ix *Indexer) Root() string { return ix.root }

// Reindex clears the store and rebuilds it from every supported file under
// the root. Files that cannot be read are skipped with a warning; an
// embedding failure aborts the rebuild.
func (ix *Indexer) Reindex(ctx context.Context) (Stats, error) {
	files, err := ListFiles(ix.root)
	if err != nil {
		return Stats{}, err
	}
	if err := ix.docs.ClearDocuments(); err != nil {
		return Stats{}, fmt.Errorf("clearing store: %w", err)
	}

	stats := Stats{Files: len(files)}
	for _, rel := range files {
		doc, err := LoadFile(ix.root, rel)
		if err != nil {
			ix.logger.Warn("skipping document", "file", rel, "error", err)
			continue
		}
		n, err := ix.IndexDocument(ctx, doc)
		if err != nil {
			return stats, err
		}
		if n > 0 {
			stats.Documents++
			stats.Chunks += n
		}
	}
	ix.logger.Info("reindex complete", "dir", ix.root, "files", stats.Files, "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}

// IngestText indexes a raw text under a generated source key.
func (ix *Indexer) IngestText(ctx context.Context, text string) (int, error) {
	return ix.IndexDocument(ctx, Document{Path: "ingest:" + uuid.New().String(), Format: "text", Text: text})
}

// IndexDocument chunks, embeds, and stores doc. Every chunk carries the
// document path as its source key so retrieval can diversify per file.
func (ix *Indexer) IndexDocument(ctx context.Context, doc Document) (int, error) {
	chunks := Chunk(doc.Text, ix.chunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", doc.Path, err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.Path, len(vecs), len(chunks))
	}

	docID := uuid.New().String()
	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, text := range chunks {
		meta, _ := json.Marshal(map[string]any{
			"file":        doc.Path,
			"doc_id":      docID,
			"chunk_index": i,
			"title":       doc.Title,
			"format":      doc.Format,
		})
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			DocID:      docID,
			SourceKey:  doc.Path,
			ChunkIndex: i,
			TextChunk:  text,
			Embedding:  vecs[i],
			Metadata:   string(meta),
			CreatedAt:  now,
		}
	}
	if err := ix.vectors.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("storing %s: %w", doc.Path, err)
	}
	if err := ix.docs.SaveDocument(storage.Document{
		ID:         docID,
		Source:     doc.Path,
		Title:      doc.Title,
		Content:    doc.Text,
		Format:     doc.Format,
		ChunkCount: len(chunks),
		CreatedAt:  now,
	}); err != nil {
		return 0, fmt.Errorf("recording %s: %w", doc.Path, err)
	}
	return len(chunks), nil
}
