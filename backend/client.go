package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/relay/iox"
)

// DefaultTimeout bounds a single generate call when the config does not
// set one.
const DefaultTimeout = 60 * time.Second

// healthTimeout bounds the model listing probe. The tags endpoint returns
// instantly when the backend is up; a long bound only delays startup
// diagnostics.
const healthTimeout = 5 * time.Second

// maxResponseBytes caps how much of a backend response body is read.
const maxResponseBytes = 4 << 20

// Config configures the backend client.
type Config struct {
	// URL is the backend base URL (e.g. http://localhost:11434).
	URL string
	// Model is the model identifier sent with each generate call.
	Model string
	// SystemPrompt is the instruction prompt sent with each generate call.
	SystemPrompt string
	// Temperature is the generation temperature.
	Temperature float64
	// Timeout bounds a single generate call (default 60s).
	Timeout time.Duration
}

// Client is a focused client for an Ollama-compatible generate API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a backend client from the given config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("backend client requires a URL")
	}
	if cfg.Model == "" {
		return nil, errors.New("backend client requires a model")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	// Per-call deadlines come from contexts; the zero client timeout
	// avoids double-bounding.
	return &Client{
		config:     cfg,
		httpClient: &http.Client{},
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// generateRequest is the request shape for the generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	System  string          `json:"system,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

// generateResponse is the minimal response shape for the generate endpoint.
type generateResponse struct {
	Response string `json:"response"`
}

// tagsResponse is the minimal response shape for the tags endpoint.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate sends one prompt to the backend and returns its raw text
// output. The call is bounded by the configured timeout; exceeding it
// aborts only this call and yields ErrTimeout.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.config.Model,
		Prompt:  prompt,
		Stream:  false,
		System:  c.config.SystemPrompt,
		Options: generateOptions{Temperature: c.config.Temperature},
	})
	if err != nil {
		return "", &Error{Kind: ErrUnavailable, Op: "generate", Err: fmt.Errorf("marshal request: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	raw, err := c.post(callCtx, c.config.URL+"/api/generate", body)
	if err != nil {
		return "", classifyCallError(callCtx, "generate", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Kind: ErrUnavailable, Op: "generate", Err: fmt.Errorf("decode response: %w", err)}
	}
	return strings.TrimSpace(resp.Response), nil
}

// ListModels returns the model names the backend reports as available.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.config.URL+"/api/tags", nil)
	if err != nil {
		return nil, &Error{Kind: ErrUnavailable, Op: "list_models", Err: err}
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, classifyCallError(callCtx, "list_models", err)
	}

	var resp tagsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Kind: ErrUnavailable, Op: "list_models", Err: fmt.Errorf("decode response: %w", err)}
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// CheckModel verifies the configured model appears among the backend's
// available models, as an exact match or as a substring of any name.
// The session loop must not start until this succeeds.
func (c *Client) CheckModel(ctx context.Context) error {
	names, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == c.config.Model || strings.Contains(name, c.config.Model) {
			return nil
		}
	}
	return &Error{
		Kind: ErrModelMissing,
		Op:   "check_model",
		Err:  fmt.Errorf("model %q not in %v", c.config.Model, names),
	}
}

// post performs a JSON POST and returns the response body on 2xx.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// statusError is returned for non-2xx backend responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// classifyCallError maps a transport-level failure to the backend error
// taxonomy: deadline expiry is a timeout, everything else is unavailable.
func classifyCallError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Op: op, Err: err}
	}
	return &Error{Kind: ErrUnavailable, Op: op, Err: err}
}
