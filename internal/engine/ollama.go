package engine

import (
	"time"

	"github.com/kalambet/localtalk/internal/ollama"
)

// OllamaEngine is an Engine served by a local Ollama daemon. The client's
// method set already matches Engine; the wrapper pins the constructor.
type OllamaEngine struct {
	*ollama.Client
}

var _ Engine = (*OllamaEngine)(nil)

// NewOllamaEngine returns an engine for the daemon at baseURL. A positive
// chatTimeout bounds each Chat call.
func NewOllamaEngine(baseURL string, chatTimeout time.Duration) *OllamaEngine {
	return &OllamaEngine{Client: ollama.New(baseURL).WithChatTimeout(chatTimeout)}
}
