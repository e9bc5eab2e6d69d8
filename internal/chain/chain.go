// Package chain binds prompt templates to generation backends and caches
// both the model handles and the bound chains.
package chain

import (
	"context"
	"fmt"

	"genie/internal/domain"
	"genie/internal/prompt"
)

var _ domain.Chain = (*Chain)(nil)

// Chain is a prompt template bound to one model handle.
type Chain struct {
	generator domain.Generator
	template  *prompt.Template
}

// New binds template to generator.
func New(generator domain.Generator, template string) *Chain {
	return &Chain{generator: generator, template: prompt.NewTemplate(template)}
}

// Model returns the id of the model the chain generates with.
func (c *Chain) Model() string { return c.generator.Model() }

// Template returns the raw prompt template.
func (c *Chain) Template() string { return c.template.Text() }

// Invoke fills the template's slots from vars and generates once. Backend
// failures are returned wrapped in domain.ErrGeneration, never retried.
func (c *Chain) Invoke(ctx context.Context, vars map[string]string) (string, error) {
	text, err := c.template.Format(vars)
	if err != nil {
		return "", err
	}
	out, err := c.generator.Generate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGeneration, c.generator.Model(), err)
	}
	return out, nil
}
