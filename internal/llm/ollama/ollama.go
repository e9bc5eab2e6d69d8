// Package ollama provides a generation backend using Ollama's native API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genie/internal/domain"
	"genie/internal/llm"
)

// Ensure Generator implements the interface.
var _ domain.Generator = (*Generator)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for an Ollama model handle.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string
	Model   string
	// Timeout bounds a single HTTP request (default: 120s).
	Timeout time.Duration
	Params  llm.Params
}

// Generator is a handle to one Ollama model with fixed sampling parameters.
type Generator struct {
	client  *http.Client
	baseURL string
	model   string
	opts    options
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

// options holds generation parameters.
type options struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewGenerator creates a handle for cfg.Model.
func NewGenerator(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: ollama model is empty", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		opts: options{
			Temperature:   cfg.Params.Temperature,
			TopP:          cfg.Params.TopP,
			RepeatPenalty: cfg.Params.RepeatPenalty,
			NumPredict:    cfg.Params.MaxTokens,
		},
	}, nil
}

// Model returns the backend model id.
func (g *Generator) Model() string { return g.model }

// Generate produces a completion for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(generateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  false,
		Options: g.opts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}

// Ping checks that the server is reachable and the model is pulled.
func (g *Generator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", g.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama error (status %d)", resp.StatusCode)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == g.model || strings.TrimSuffix(m.Name, ":latest") == g.model {
			return nil
		}
	}
	return fmt.Errorf("model %s is not pulled; run `ollama pull %s`", g.model, g.model)
}
