package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) *fileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return openFileStore(path)
}

// clearEnv unsets every LOCALTALK_* variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Place.Name != "Yokosuka" || cfg.Place.Timezone != "Asia/Tokyo" || cfg.Place.Lat != 35.2810 {
		t.Errorf("Place = %+v", cfg.Place)
	}
	if cfg.Generation.TopK != 16 || cfg.Generation.MaxChars != 280 || cfg.Generation.OutputStyle != "social_post" {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
	if cfg.HTTP.Retries != 1 || cfg.HTTP.TimeoutSeconds != 120 || cfg.HTTP.RetryDelaySeconds != 1.0 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if !reflect.DeepEqual(cfg.Feed.Paths, []string{"frontend/app/public/feed/feed.json"}) || cfg.Feed.RollingPaths != nil || cfg.Feed.MaxItems != 365 {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
	if cfg.Server.Port != 8000 || cfg.Server.MCPEnabled || !cfg.Server.ReindexEnabled {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Ollama.ChatModel != "llama3.1" || cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama = %+v", cfg.Ollama)
	}
	if cfg.Bot.Name != "YokoWeather" {
		t.Errorf("Bot.Name = %q", cfg.Bot.Name)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestJSONFile verifies that fields are read from the flat JSON file.
func TestJSONFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
		"api.base_url": "http://backend:9000",
		"place.name": "Miura",
		"place.lat": 35.14,
		"generation.top_k": 8,
		"generation.include_debug": true,
		"http.retry_delay_seconds": "2.5",
		"feed.paths": ["a.json", "b.json"],
		"feed.rolling_paths": "r1.json, r2.json",
		"server.port": "9100",
		"server.reindex_enabled": "false",
		"docs.dir": "/srv/docs"
	}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://backend:9000" || cfg.Place.Name != "Miura" || cfg.Place.Lat != 35.14 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Generation.TopK != 8 || !cfg.Generation.IncludeDebug {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
	if cfg.RetryDelay().Seconds() != 2.5 {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay())
	}
	if !reflect.DeepEqual(cfg.Feed.Paths, []string{"a.json", "b.json"}) {
		t.Errorf("Feed.Paths = %v", cfg.Feed.Paths)
	}
	if !reflect.DeepEqual(cfg.Feed.RollingPaths, []string{"r1.json", "r2.json"}) {
		t.Errorf("Feed.RollingPaths = %v", cfg.Feed.RollingPaths)
	}
	if cfg.Server.Port != 9100 || cfg.Server.ReindexEnabled {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Docs.Dir != "/srv/docs" {
		t.Errorf("Docs.Dir = %q", cfg.Docs.Dir)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"api.base_url": "http://file:8000", "generation.max_chars": 200}`)

	t.Setenv("LOCALTALK_API_BASE", "http://env:8000")
	t.Setenv("LOCALTALK_MAX_CHARS", "140")
	t.Setenv("LOCALTALK_LATEST_PATHS", "x/latest.json,y/latest.json")
	t.Setenv("LOCALTALK_MCP_ENABLED", "true")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://env:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Generation.MaxChars != 140 {
		t.Errorf("MaxChars = %d", cfg.Generation.MaxChars)
	}
	if !reflect.DeepEqual(cfg.Feed.LatestPaths, []string{"x/latest.json", "y/latest.json"}) {
		t.Errorf("LatestPaths = %v", cfg.Feed.LatestPaths)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("MCPEnabled not overridden")
	}
}

// TestBadValuesKeepDefaults verifies unparsable values warn and fall back.
func TestBadValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"generation.include_debug": "maybe"}`)
	t.Setenv("LOCALTALK_TOP_K", "many")
	t.Setenv("LOCALTALK_PLACE_LAT", "north")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.TopK != 16 || cfg.Generation.IncludeDebug || cfg.Place.Lat != 35.2810 {
		t.Errorf("defaults not kept: %+v %+v", cfg.Generation, cfg.Place)
	}
}

// TestBadIntInFile verifies a non-integer number in the file is an error.
func TestBadIntInFile(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 80.5}`)); err == nil {
		t.Fatal("expected error for fractional port")
	}
}

// TestSecretsNotReadFromFile verifies secrets come only from the environment.
func TestSecretsNotReadFromFile(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{"proxy.openrouter_api_key": "file-key"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "" {
		t.Errorf("secrets read from file: %+v %+v", cfg.Proxy, cfg.Server)
	}
}

// TestProviderValidation verifies the hosted provider requires its key.
func TestProviderValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCALTALK_PROVIDER", "openrouter")

	_, err := loadWith(writeTempConfig(t, `{}`))
	if err == nil || !strings.Contains(err.Error(), "missing required config") {
		t.Fatalf("err = %v, want missing key", err)
	}

	t.Setenv("LOCALTALK_OPENROUTER_API_KEY", "env-key")
	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "env-key" {
		t.Errorf("OpenRouterAPIKey = %q", cfg.Proxy.OpenRouterAPIKey)
	}

	t.Setenv("LOCALTALK_PROVIDER", "bedrock")
	if _, err := loadWith(writeTempConfig(t, `{}`)); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestInvalidTimezone(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCALTALK_PLACE_TIMEZONE", "Mars/Olympus")
	if _, err := loadWith(writeTempConfig(t, `{}`)); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "generation.top_k", "10"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}
	if err := setKey(b, "place.name", "Hayama"); err != nil {
		t.Fatalf("setKey string: %v", err)
	}
	if err := setKey(b, "server.mcp_enabled", "true"); err != nil {
		t.Fatalf("setKey bool: %v", err)
	}
	if err := setKey(b, "feed.rolling_paths", "r1.json, r2.json"); err != nil {
		t.Fatalf("setKey list: %v", err)
	}
	if err := setKey(b, "generation.top_k", "ten"); err == nil {
		t.Error("expected error for invalid int")
	}
	if err := setKey(b, "server.mcp_enabled", "perhaps"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKey(b, "proxy.openrouter_api_key", "x"); err == nil || !strings.Contains(err.Error(), "LOCALTALK_OPENROUTER_API_KEY") {
		t.Errorf("secret err = %v", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		t.Fatal(err)
	}
	var saved map[string]any
	json.Unmarshal(data, &saved)
	if saved["generation.top_k"] != float64(10) || saved["place.name"] != "Hayama" || saved["server.mcp_enabled"] != true {
		t.Errorf("saved = %v", saved)
	}

	clearEnv(t)
	cfg, err := loadWith(openFileStore(b.path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.TopK != 10 || cfg.Place.Name != "Hayama" || !cfg.Server.MCPEnabled {
		t.Errorf("round trip cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Feed.RollingPaths, []string{"r1.json", "r2.json"}) {
		t.Errorf("round trip RollingPaths = %v", cfg.Feed.RollingPaths)
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.OpenRouterAPIKey = "sk-secret"
	cfg.Feed.LatestPaths = []string{"a", "b"}

	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "sk-secret") || k.Key == "proxy.openrouter_api_key" {
			t.Errorf("secret shown: %+v", k)
		}
		if k.Key == "feed.latest_paths" && k.Value != "a,b" {
			t.Errorf("latest_paths = %q, want a,b", k.Value)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Error("ShowAll and ValidKeys disagree")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Info("feed appended", "items", 3)
	logger.Debug("hidden")

	if !strings.Contains(stderr.String(), "msg=\"feed appended\" items=3") {
		t.Errorf("stderr = %q", stderr.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(file.Bytes(), &rec); err != nil {
		t.Fatalf("file output is not one JSON record: %v", err)
	}
	if rec["msg"] != "feed appended" {
		t.Errorf("file record = %v", rec)
	}
}

func TestSetupLogger_FileFallback(t *testing.T) {
	logger, cleanup := SetupLogger(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), slog.LevelInfo)
	defer cleanup()
	if logger == nil {
		t.Fatal("nil logger")
	}

	path := filepath.Join(t.TempDir(), "localtalk.log")
	logger, cleanup = SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	if err := cleanup(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestMalformedFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{"place.name": `))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Place.Name != defaults().Place.Name {
		t.Errorf("Place.Name = %q", cfg.Place.Name)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	f := openFileStore(filepath.Join(t.TempDir(), "nope", "config.json"))
	if len(f.data) != 0 {
		t.Errorf("data = %v", f.data)
	}
	if err := f.put("place.name", "Zushi"); err != nil {
		t.Fatalf("put into missing dir: %v", err)
	}
	if got := openFileStore(f.path).data["place.name"]; got != "Zushi" {
		t.Errorf("reloaded = %v", got)
	}
}
