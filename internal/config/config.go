// Package config loads localtalk settings from the config file and
// LOCALTALK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	API        APIConfig
	Place      PlaceConfig
	Weather    WeatherConfig
	Generation GenerationConfig
	HTTP       HTTPConfig
	Feed       FeedConfig
	Server     ServerConfig
	Ollama     OllamaConfig
	Proxy      ProxyConfig
	Bot        BotConfig
	Storage    StorageConfig
	Docs       DocsConfig
	Log        LogConfig
}

type APIConfig struct {
	BaseURL string
}

type PlaceConfig struct {
	Name     string
	Lat      float64
	Lon      float64
	Timezone string
}

type WeatherConfig struct {
	JMAOffice string
	JMAArea   string
	// Command, when set, replaces the JMA fetcher with an external program.
	Command        string
	TimeoutSeconds int
}

type GenerationConfig struct {
	TopK         int
	MaxChars     int
	OutputStyle  string
	IncludeDebug bool
	// Provider is "ollama" or "openrouter".
	Provider string
}

type HTTPConfig struct {
	TimeoutSeconds    int
	Retries           int
	RetryDelaySeconds float64
}

type FeedConfig struct {
	Paths        []string
	LatestPaths  []string
	RollingPaths []string
	MaxItems     int
}

type ServerConfig struct {
	Port           int
	MCPEnabled     bool
	ReindexEnabled bool
}

type OllamaConfig struct {
	BaseURL            string
	ChatModel          string
	EmbedModel         string
	ChatTimeoutSeconds int
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

type BotConfig struct {
	Name     string
	Hashtags string
}

type StorageConfig struct {
	DataDir string
}

type DocsConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
	File  string
}

const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

func defaults() Config {
	return Config{
		API: APIConfig{BaseURL: "http://localhost:8000"},
		Place: PlaceConfig{
			Name:     "Yokosuka",
			Lat:      35.2810,
			Lon:      139.6722,
			Timezone: "Asia/Tokyo",
		},
		Weather: WeatherConfig{
			JMAOffice:      "140000",
			JMAArea:        "141000",
			TimeoutSeconds: 20,
		},
		Generation: GenerationConfig{
			TopK:        16,
			MaxChars:    280,
			OutputStyle: "social_post",
			Provider:    ProviderOllama,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds:    120,
			Retries:           1,
			RetryDelaySeconds: 1.0,
		},
		Feed: FeedConfig{
			Paths:       []string{"frontend/app/public/feed/feed.json"},
			LatestPaths: []string{"frontend/app/public/latest.json"},
			MaxItems:    365,
		},
		Server: ServerConfig{
			Port:           8000,
			ReindexEnabled: true,
		},
		Ollama: OllamaConfig{
			BaseURL:            "http://localhost:11434",
			ChatModel:          "llama3.1",
			EmbedModel:         "nomic-embed-text",
			ChatTimeoutSeconds: 300,
		},
		Proxy: ProxyConfig{
			DefaultModel: "anthropic/claude-haiku-4-5",
		},
		Bot: BotConfig{
			Name:     "YokoWeather",
			Hashtags: "#Yokosuka #MiuraPeninsula #Kanagawa",
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Docs:    DocsConfig{Dir: "data/docs"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from the JSON config file at ConfigFilePath,
// then applies LOCALTALK_* environment variable overrides.
func Load() (Config, error) {
	return loadWith(openFileStore(ConfigFilePath()))
}

func loadWith(f *fileStore) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, f); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Generation.Provider {
	case ProviderOllama:
	case ProviderOpenRouter:
		if c.Proxy.OpenRouterAPIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. " +
				"Set it via environment variable LOCALTALK_OPENROUTER_API_KEY or switch generation.provider to ollama")
		}
	default:
		return fmt.Errorf("generation.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenRouter, c.Generation.Provider)
	}
	if _, err := time.LoadLocation(c.Place.Timezone); err != nil {
		return fmt.Errorf("place.timezone: %w", err)
	}
	return nil
}

// HTTPTimeout is the per-attempt timeout for outbound requests.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay is the pause between request attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.HTTP.RetryDelaySeconds * float64(time.Second))
}

// WeatherTimeout bounds the external weather command.
func (c Config) WeatherTimeout() time.Duration {
	return time.Duration(c.Weather.TimeoutSeconds) * time.Second
}

// ChatTimeout bounds one local chat call.
func (c Config) ChatTimeout() time.Duration {
	return time.Duration(c.Ollama.ChatTimeoutSeconds) * time.Second
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
