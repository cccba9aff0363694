package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	// kList is a comma-separated list of strings.
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "LOCALTALK_API_BASE",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "place.name", typ: kString, env: "LOCALTALK_PLACE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Place.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Place.Name },
	},
	{
		key: "place.lat", typ: kFloat, env: "LOCALTALK_PLACE_LAT",
		apply:   func(cfg *Config, v any) { cfg.Place.Lat = v.(float64) },
		extract: func(cfg Config) any { return cfg.Place.Lat },
	},
	{
		key: "place.lon", typ: kFloat, env: "LOCALTALK_PLACE_LON",
		apply:   func(cfg *Config, v any) { cfg.Place.Lon = v.(float64) },
		extract: func(cfg Config) any { return cfg.Place.Lon },
	},
	{
		key: "place.timezone", typ: kString, env: "LOCALTALK_PLACE_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Place.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Place.Timezone },
	},
	{
		key: "weather.jma_office", typ: kString, env: "LOCALTALK_WEATHER_JMA_OFFICE",
		apply:   func(cfg *Config, v any) { cfg.Weather.JMAOffice = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.JMAOffice },
	},
	{
		key: "weather.jma_area", typ: kString, env: "LOCALTALK_WEATHER_JMA_AREA",
		apply:   func(cfg *Config, v any) { cfg.Weather.JMAArea = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.JMAArea },
	},
	{
		key: "weather.command", typ: kString, env: "LOCALTALK_WEATHER_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Weather.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.Command },
	},
	{
		key: "weather.timeout_seconds", typ: kInt, env: "LOCALTALK_WEATHER_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Weather.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Weather.TimeoutSeconds },
	},
	{
		key: "generation.top_k", typ: kInt, env: "LOCALTALK_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Generation.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.TopK },
	},
	{
		key: "generation.max_chars", typ: kInt, env: "LOCALTALK_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxChars },
	},
	{
		key: "generation.output_style", typ: kString, env: "LOCALTALK_OUTPUT_STYLE",
		apply:   func(cfg *Config, v any) { cfg.Generation.OutputStyle = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OutputStyle },
	},
	{
		key: "generation.include_debug", typ: kBool, env: "LOCALTALK_INCLUDE_DEBUG",
		apply:   func(cfg *Config, v any) { cfg.Generation.IncludeDebug = v.(bool) },
		extract: func(cfg Config) any { return cfg.Generation.IncludeDebug },
	},
	{
		key: "generation.provider", typ: kString, env: "LOCALTALK_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "http.timeout_seconds", typ: kInt, env: "LOCALTALK_HTTP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.HTTP.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.HTTP.TimeoutSeconds },
	},
	{
		key: "http.retries", typ: kInt, env: "LOCALTALK_HTTP_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.HTTP.Retries = v.(int) },
		extract: func(cfg Config) any { return cfg.HTTP.Retries },
	},
	{
		key: "http.retry_delay_seconds", typ: kFloat, env: "LOCALTALK_HTTP_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.HTTP.RetryDelaySeconds = v.(float64) },
		extract: func(cfg Config) any { return cfg.HTTP.RetryDelaySeconds },
	},
	{
		key: "feed.paths", typ: kList, env: "LOCALTALK_FEED_PATHS",
		apply:   func(cfg *Config, v any) { cfg.Feed.Paths = v.([]string) },
		extract: func(cfg Config) any { return cfg.Feed.Paths },
	},
	{
		key: "feed.latest_paths", typ: kList, env: "LOCALTALK_LATEST_PATHS",
		apply:   func(cfg *Config, v any) { cfg.Feed.LatestPaths = v.([]string) },
		extract: func(cfg Config) any { return cfg.Feed.LatestPaths },
	},
	{
		key: "feed.rolling_paths", typ: kList, env: "LOCALTALK_ROLLING_PATHS",
		apply:   func(cfg *Config, v any) { cfg.Feed.RollingPaths = v.([]string) },
		extract: func(cfg Config) any { return cfg.Feed.RollingPaths },
	},
	{
		key: "feed.max_items", typ: kInt, env: "LOCALTALK_FEED_MAX_ITEMS",
		apply:   func(cfg *Config, v any) { cfg.Feed.MaxItems = v.(int) },
		extract: func(cfg Config) any { return cfg.Feed.MaxItems },
	},
	{
		key: "server.port", typ: kInt, env: "LOCALTALK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "LOCALTALK_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "server.reindex_enabled", typ: kBool, env: "LOCALTALK_REINDEX_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.ReindexEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.ReindexEnabled },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LOCALTALK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "LOCALTALK_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "LOCALTALK_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.chat_timeout_seconds", typ: kInt, env: "LOCALTALK_OLLAMA_CHAT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatTimeoutSeconds },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "LOCALTALK_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.default_model", typ: kString, env: "LOCALTALK_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "bot.name", typ: kString, env: "LOCALTALK_BOT_NAME",
		apply:   func(cfg *Config, v any) { cfg.Bot.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Bot.Name },
	},
	{
		key: "bot.hashtags", typ: kString, env: "LOCALTALK_HASHTAGS",
		apply:   func(cfg *Config, v any) { cfg.Bot.Hashtags = v.(string) },
		extract: func(cfg Config) any { return cfg.Bot.Hashtags },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LOCALTALK_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "docs.dir", typ: kString, env: "LOCALTALK_DOCS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Docs.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Docs.Dir },
	},
	{
		key: "log.level", typ: kString, env: "LOCALTALK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "LOCALTALK_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

// parse converts a raw string for s. Secrets and strings never fail.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	case kFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case kList:
		return splitList(raw), nil
	}
	return raw, nil
}

func (s keySpec) typeName() string {
	switch s.typ {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kList:
		return "list"
	}
	return "string"
}

func applyFile(cfg *Config, f *fileStore) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := f.raw(s)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString && s.typ != kList) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typeName(), s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typeName(), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
