package domain

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists text units with their vectors and supports similarity search.
// Search returns at most n candidates, most similar first, each with its stored embedding.
type VectorStore interface {
	Name() string
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, units []TextUnit, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, n int, filter Filter) ([]Candidate, error)
	Reset(ctx context.Context) error
}

// Retriever returns the text units most relevant to a query, in selection order.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]TextUnit, error)
}

// Generator is a live handle to a text generation backend for one model.
type Generator interface {
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chain fills a prompt template's named slots and runs generation.
type Chain interface {
	Invoke(ctx context.Context, vars map[string]string) (string, error)
}
