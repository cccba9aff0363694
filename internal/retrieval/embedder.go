package retrieval

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds in-flight embedding calls against the local engine.
const embedConcurrency = 4

// ErrEmptyVector means the engine answered without an embedding.
var ErrEmptyVector = errors.New("engine returned an empty embedding")

// EmbedModel is the part of engine.Engine the embedder uses.
type EmbedModel interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder turns chunk text and queries into vectors with one model.
type Embedder struct {
	engine EmbedModel
	model  string
}

func NewEmbedder(e EmbedModel, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model is the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently, keeping input order. Every vector
// must have the same dimension; a model swap mid-batch is an error. Empty
// input returns nil.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, v := range results[1:] {
		if len(v) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, want %d", i+1, len(v), dim)
		}
	}
	return results, nil
}
