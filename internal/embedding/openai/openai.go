// Package openai embeds text through any OpenAI-compatible embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"genie/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	api        *goopenai.Client
	model      string
	maxRetries int
	sleep      func(time.Duration)
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
// The API key may only be omitted for a non-default base URL, such as a local
// Ollama server's /v1 endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && cfg.BaseURL == defaultBaseURL {
		return nil, fmt.Errorf("%w: missing API key in env %q", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	oc := goopenai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		api:        goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		maxRetries: 5,
		sleep:      time.Sleep,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Embed returns an embedding vector for the given text. Rate limits and
// server errors are retried with exponential backoff.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.model),
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err == nil {
			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return nil, errors.New("no embedding returned")
			}
			return resp.Data[0].Embedding, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) || attempt == c.maxRetries {
			break
		}
		c.sleep(retryDelay(attempt))
	}
	return nil, fmt.Errorf("openai embeddings: %w", lastErr)
}

func retryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Transport failure
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
