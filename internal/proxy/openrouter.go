// Package proxy is a client for OpenRouter's OpenAI-compatible API, used when
// posts are generated by a hosted model instead of the local engine.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 120 * time.Second
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// APIError is a non-200 answer from the provider.
type APIError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, if any
}

func (e *APIError) Error() string {
	if e.Status == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limited (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Client talks to OpenRouter.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBackoff sets the first 429 backoff; later ones double.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		backoff:    initialBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Chat returns the first choice's content. Only HTTP 429 is retried, up to
// maxAttempts, waiting Retry-After when the provider sends it and an
// exponential backoff otherwise.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		var out chatResponse
		err := c.do(ctx, http.MethodPost, "/chat/completions", req, &out)
		if err == nil {
			if len(out.Choices) == 0 {
				return "", fmt.Errorf("completion %s has no choices", out.ID)
			}
			return out.Choices[0].Message.Content, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
			return "", err
		}
		if attempt == maxAttempts {
			return "", fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		delay := wait
		if apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		wait *= 2
	}
}

// ListModels returns the models the provider offers.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var list modelList
	if err := c.do(ctx, http.MethodGet, "/models", nil, &list); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

// HasModel reports whether id is offered by the provider.
func (c *Client) HasModel(ctx context.Context, id string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(models, func(m Model) bool { return m.ID == id }), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/kalambet/localtalk")
	req.Header.Set("X-Title", "localtalk")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return &APIError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// retryAfter parses a delay-seconds Retry-After value. HTTP dates and junk
// yield 0.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
