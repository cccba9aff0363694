package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultUserAgent  = "localtalk/1.0"
	errorSnippetBytes = 400
	bodySnippetBytes  = 200
)

// Options controls timeouts and the retry budget of an Executor.
type Options struct {
	// Timeout bounds each individual attempt, not the whole call.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	UserAgent  string
}

// Executor issues JSON requests with bounded retries. Every response must be
// a JSON object; anything else is classified and retried.
type Executor struct {
	httpClient *http.Client
	opts       Options
}

// New creates an Executor using a fresh http.Client. Zero-valued options fall
// back to a 60s timeout and no retries.
func New(opts Options) *Executor {
	return NewWithClient(&http.Client{}, opts)
}

// NewWithClient creates an Executor on top of an existing http.Client.
func NewWithClient(c *http.Client, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Executor{httpClient: c, opts: opts}
}

// GetJSON issues a GET and returns the decoded object.
func (e *Executor) GetJSON(ctx context.Context, url string) (map[string]any, error) {
	return e.Execute(ctx, http.MethodGet, url, nil)
}

// PostJSON issues a POST with payload serialized as UTF-8 JSON.
func (e *Executor) PostJSON(ctx context.Context, url string, payload any) (map[string]any, error) {
	return e.Execute(ctx, http.MethodPost, url, payload)
}

// GetValue issues a GET and accepts any JSON value, not only objects. Some
// upstream APIs answer with a top-level array.
func (e *Executor) GetValue(ctx context.Context, url string) (any, error) {
	return e.run(ctx, http.MethodGet, url, nil, false)
}

// Execute performs the request up to 1+MaxRetries times. The error of the
// final attempt is returned unchanged when every attempt fails. Cancellation
// during a retry wait returns the context error wrapped with the last
// attempt's error.
func (e *Executor) Execute(ctx context.Context, method, url string, payload any) (map[string]any, error) {
	v, err := e.run(ctx, method, url, payload, true)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (e *Executor) run(ctx context.Context, method, url string, payload any, wantObject bool) (any, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = encodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		v, err := e.attempt(ctx, method, url, body, wantObject)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == e.opts.MaxRetries {
			break
		}
		slog.Warn("request attempt failed, retrying",
			"method", method,
			"url", url,
			"attempt", attempt+1,
			"max_attempts", e.opts.MaxRetries+1,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (after: %w)", ctx.Err(), lastErr)
		case <-time.After(e.opts.RetryDelay):
		}
	}
	return nil, lastErr
}

func (e *Executor) attempt(ctx context.Context, method, url string, body []byte, wantObject bool) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.opts.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{
			Method:  method,
			URL:     url,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method:  method,
			URL:     url,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     fmt.Errorf("reading body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			Method:      method,
			URL:         url,
			Code:        resp.StatusCode,
			Status:      http.StatusText(resp.StatusCode),
			BodySnippet: snippet(raw, errorSnippetBytes),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &EmptyBodyError{URL: url}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &MalformedBodyError{URL: url, Reason: "response is not JSON", Snippet: snippet(raw, bodySnippetBytes)}
	}
	if _, ok := decoded.(map[string]any); wantObject && !ok {
		return nil, &MalformedBodyError{URL: url, Reason: fmt.Sprintf("response is JSON %s, want object", jsonKind(decoded))}
	}
	return decoded, nil
}

func encodePayload(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func snippet(raw []byte, max int) string {
	if len(raw) > max {
		raw = raw[:max]
	}
	return strings.ToValidUTF8(strings.TrimSpace(string(raw)), "�")
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
