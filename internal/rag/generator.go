package rag

import (
	"context"
	"fmt"

	"github.com/kalambet/localtalk/internal/engine"
	"github.com/kalambet/localtalk/internal/proxy"
)

// Generator produces the raw model answer for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	// Model names the model behind the generator, for the generation log.
	Model() string
}

// EngineGenerator generates with the local inference engine.
type EngineGenerator struct {
	engine engine.Engine
	model  string
}

func NewEngineGenerator(e engine.Engine, model string) *EngineGenerator {
	return &EngineGenerator{engine: e, model: model}
}

func (g *EngineGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	out, err := g.engine.Chat(ctx, g.model, []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return "", fmt.Errorf("local chat failed: %w", err)
	}
	return out, nil
}

func (g *EngineGenerator) Model() string { return g.model }

// ProxyGenerator generates with a hosted OpenAI-compatible provider.
type ProxyGenerator struct {
	client *proxy.Client
	model  string
}

func NewProxyGenerator(c *proxy.Client, model string) *ProxyGenerator {
	return &ProxyGenerator{client: c, model: model}
}

func (g *ProxyGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	out, err := g.client.Chat(ctx, proxy.ChatRequest{
		Model: g.model,
		Messages: []proxy.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("hosted chat failed: %w", err)
	}
	return out, nil
}

func (g *ProxyGenerator) Model() string { return g.model }
