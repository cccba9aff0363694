// Package backend calls the retrieval+generation service that writes the
// post text.
package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kalambet/localtalk/internal/request"
)

// QueryRequest is the body of POST /rag/query.
type QueryRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	MaxChars       int    `json:"max_chars"`
	OutputStyle    string `json:"output_style"`
	ExtraContext   string `json:"extra_context,omitempty"`
	UseLiveWeather bool   `json:"use_live_weather"`
	IncludeDebug   bool   `json:"include_debug"`
}

// ExtractionError means a well-formed response carried none of the keys the
// answer is expected under.
type ExtractionError struct {
	Keys []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract answer from response keys=%v", e.Keys)
}

// Client talks to one backend base URL through a request.Executor.
type Client struct {
	exec    *request.Executor
	baseURL string
}

// NewClient creates a Client for baseURL.
func NewClient(exec *request.Executor, baseURL string) *Client {
	return &Client{exec: exec, baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Status fetches GET /rag/status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.exec.GetJSON(ctx, c.baseURL+"/rag/status")
}

// Query posts req to /rag/query and returns the decoded response object.
func (c *Client) Query(ctx context.Context, req QueryRequest) (map[string]any, error) {
	return c.exec.PostJSON(ctx, c.baseURL+"/rag/query", req)
}

var answerKeys = []string{"answer", "text", "output"}

// ExtractAnswer returns the first non-blank string under answer, text,
// output, or result.answer, trimmed.
func ExtractAnswer(obj map[string]any) (string, error) {
	for _, k := range answerKeys {
		if s, ok := nonBlank(obj[k]); ok {
			return s, nil
		}
	}
	if result, ok := obj["result"].(map[string]any); ok {
		if s, ok := nonBlank(result["answer"]); ok {
			return s, nil
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return "", &ExtractionError{Keys: keys}
}

// ExtractDetail returns the optional detail object, or nil.
func ExtractDetail(obj map[string]any) map[string]any {
	d, _ := obj["detail"].(map[string]any)
	return d
}

func nonBlank(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
