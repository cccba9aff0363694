package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
	progress  []PullProgress
	pullErr   error
}

func (m *mockEngine) Chat(context.Context, string, []Message) (string, error) { return "", nil }
func (m *mockEngine) Embed(context.Context, string, string) ([]float32, error) {
	return nil, nil
}
func (m *mockEngine) IsRunning(context.Context) bool               { return m.isRunning }
func (m *mockEngine) HasModel(_ context.Context, name string) bool { return m.models[name] }
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if m.pullErr != nil {
		return m.pullErr
	}
	for _, p := range m.progress {
		cb(p)
	}
	return nil
}

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"llama3.1": true, "nomic-embed-text": true},
	}
	if err := EnsureReady(context.Background(), m, io.Discard, "llama3.1", "nomic-embed-text"); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissingOnce(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{"llama3.1": true}}
	err := EnsureReady(context.Background(), m, io.Discard, "", "llama3.1", "nomic-embed-text", "nomic-embed-text")
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "nomic-embed-text" {
		t.Errorf("pulled = %v, want [nomic-embed-text]", m.pulled)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	err := EnsureReady(context.Background(), &mockEngine{}, io.Discard, "llama3.1")
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
	if !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("error = %q, want a start hint", err)
	}
}

func TestEnsureReady_PullError(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}, pullErr: errors.New("disk full")}
	err := EnsureReady(context.Background(), m, io.Discard, "bge-m3")
	if err == nil || !strings.Contains(err.Error(), "pulling model bge-m3: disk full") {
		t.Errorf("err = %v", err)
	}
}

func TestEnsureReady_ProgressSteps(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{},
		progress: []PullProgress{
			{Status: "pulling manifest"},
			{Status: "pulling manifest"},
			{Status: "downloading", Total: 100, Completed: 1},
			{Status: "downloading", Total: 100, Completed: 5},
			{Status: "downloading", Total: 100, Completed: 55},
			{Status: "downloading", Total: 100, Completed: 100},
			{Status: "success"},
		},
	}
	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), m, &buf, "bge-m3"); err != nil {
		t.Fatal(err)
	}
	want := "model bge-m3: pulling...\n" +
		"  pulling manifest\n" +
		"  downloading 0%\n" +
		"  downloading 50%\n" +
		"  downloading 100%\n" +
		"  success\n" +
		"model bge-m3: ready\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestDetect(t *testing.T) {
	e, err := Detect(DetectConfig{OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}

	for _, bad := range []string{"", "localhost:11434", "ftp://host", "http://"} {
		if _, err := Detect(DetectConfig{OllamaBaseURL: bad}); err == nil {
			t.Errorf("Detect(%q) should fail", bad)
		}
	}
}
