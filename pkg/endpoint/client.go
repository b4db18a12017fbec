package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client sends one prompt to a model endpoint and returns its answer.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config describes a chat-style model endpoint.
type Config struct {
	// URL is the full chat endpoint, e.g. http://localhost:11434/api/chat
	// or https://api.openai.com/v1/chat/completions.
	URL string `koanf:"url" yaml:"url" validate:"omitempty,url"`

	// Model is the model-identity hint sent in each request.
	Model string `koanf:"model" yaml:"model"`

	// APIKey is sent as a bearer token when set.
	APIKey string `koanf:"api_key" yaml:"api_key"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`

	// RateLimit is the maximum number of requests per second; 0 disables
	// limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit" validate:"gte=0"`

	// Burst is the limiter burst size.
	Burst int `koanf:"burst" yaml:"burst" validate:"gte=0"`

	// Headers are added to every request.
	Headers map[string]string `koanf:"headers" yaml:"headers"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse accepts the Ollama chat, Ollama generate and OpenAI chat
// completion reply shapes.
type chatResponse struct {
	Message  *message `json:"message"`
	Response string   `json:"response"`
	Choices  []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (r chatResponse) text() string {
	if r.Message != nil && r.Message.Content != "" {
		return r.Message.Content
	}
	if len(r.Choices) > 0 && r.Choices[0].Message.Content != "" {
		return r.Choices[0].Message.Content
	}
	return r.Response
}

// HTTPClient is a rate-limited JSON chat client.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient creates a client for cfg.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("endpoint url %q must use http or https", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.With().Str("component", "endpoint").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns a printable description of the endpoint.
func (c *HTTPClient) Target() string {
	if c.cfg.Model == "" {
		return c.cfg.URL
	}
	return c.cfg.Model + "@" + c.cfg.URL
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []message{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := out.text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().
		Str("model", c.cfg.Model).
		Dur("elapsed", time.Since(start)).
		Int("chars", len(text)).
		Msg("Endpoint answered")
	return text, nil
}
