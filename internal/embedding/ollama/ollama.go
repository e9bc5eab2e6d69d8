// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
)

// Embedder wraps chromem's Ollama embedding function as a domain.Embedder.
type Embedder struct {
	model string
	fn    chromem.EmbeddingFunc
}

// NewEmbedder creates an embedder for model served at baseURL
// (for example http://localhost:11434).
func NewEmbedder(model, baseURL string) *Embedder {
	api := strings.TrimRight(baseURL, "/")
	if api != "" && !strings.HasSuffix(api, "/api") {
		api += "/api"
	}
	return &Embedder{model: model, fn: chromem.NewEmbeddingFuncOllama(model, api)}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "ollama:" + e.model }

// Embed returns the normalized embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.fn(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed %s: %w", e.model, err)
	}
	return v, nil
}
