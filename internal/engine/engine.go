// Package engine is the local inference backend: embeddings for the document
// store and, unless a hosted provider is configured, chat for the posts.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kalambet/localtalk/internal/ollama"
)

// Engine abstracts a local inference backend.
type Engine interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the backend answers at all.
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	// PullModel downloads a model. onProgress may be nil.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Message is one chat turn.
type Message = ollama.Message

// PullProgress is one line of a model pull stream.
type PullProgress = ollama.PullProgress

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
	ChatTimeout   time.Duration
}

// Detect returns the local inference backend. Ollama is the only one
// supported; its base URL must be an absolute http(s) URL.
func Detect(cfg DetectConfig) (Engine, error) {
	u, err := url.Parse(cfg.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ollama base url %q must be http(s)://host[:port]", cfg.OllamaBaseURL)
	}
	return NewOllamaEngine(cfg.OllamaBaseURL, cfg.ChatTimeout), nil
}
