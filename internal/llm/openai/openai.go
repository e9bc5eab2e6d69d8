// Package openai provides a generation backend for OpenAI-compatible chat APIs.
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
	"genie/internal/llm"
)

var _ domain.Generator = (*Generator)(nil)

// Config configures a chat model handle.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// Params.RepeatPenalty has no chat-completions equivalent and is ignored.
	Params llm.Params
}

// Generator sends each prompt as a single user message.
type Generator struct {
	client *goopenai.Client
	model  string
	params llm.Params
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: chat model is empty", domain.ErrConfiguration)
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if key == "" && oc.BaseURL == goopenai.DefaultConfig("").BaseURL {
		return nil, fmt.Errorf("%w: missing API key in env %q", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Generator{client: goopenai.NewClientWithConfig(oc), model: cfg.Model, params: cfg.Params}, nil
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(g.params.Temperature),
		TopP:        float32(g.params.TopP),
		MaxTokens:   g.params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
