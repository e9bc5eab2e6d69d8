package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"genie/internal/domain"
)

// ModelFactory creates a live model handle. It is called at most once per
// model id for each successful creation.
type ModelFactory func(ctx context.Context, modelID string) (domain.Generator, error)

// ModelCache memoizes model handles by model id. Concurrent first requests
// for the same id share one factory call; failures are not cached.
type ModelCache struct {
	factory ModelFactory
	logger  arbor.ILogger

	mu     sync.RWMutex
	models map[string]domain.Generator
	group  singleflight.Group
}

func NewModelCache(factory ModelFactory, logger arbor.ILogger) *ModelCache {
	return &ModelCache{factory: factory, logger: logger, models: make(map[string]domain.Generator)}
}

// GetModel returns the cached handle for modelID, creating it on first use.
func (c *ModelCache) GetModel(ctx context.Context, modelID string) (domain.Generator, error) {
	c.mu.RLock()
	m, ok := c.models[modelID]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}
	v, err := fill(ctx, &c.group, modelID, func(ctx context.Context) (any, error) {
		c.mu.RLock()
		m, ok := c.models[modelID]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}
		start := time.Now()
		m, err := c.factory(ctx, modelID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.models[modelID] = m
		c.mu.Unlock()
		c.logger.Info().Str("model", modelID).Dur("elapsed", time.Since(start)).Msg("Model loaded")
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Generator), nil
}

// Len returns the number of cached handles.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// fill runs fn once per key for all concurrent callers. fn gets a context
// that ignores the first caller's cancellation, so one caller giving up does
// not fail the others; each caller still stops waiting when its own ctx ends.
func fill(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (any, error)) (any, error) {
	shared := context.WithoutCancel(ctx)
	res := group.DoChan(key, func() (any, error) { return fn(shared) })
	select {
	case r := <-res:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type chainKey struct {
	model    string
	template string
}

// Cache memoizes chains by (model id, template). Model handles come from a
// shared ModelCache, so chains with different templates reuse one model.
type Cache struct {
	models *ModelCache

	mu     sync.RWMutex
	chains map[chainKey]*Chain
	group  singleflight.Group
}

func NewCache(models *ModelCache) *Cache {
	return &Cache{models: models, chains: make(map[chainKey]*Chain)}
}

// Models returns the model cache the chains draw from.
func (c *Cache) Models() *ModelCache { return c.models }

// GetChain returns the cached chain for (modelID, template), building it on
// first use.
func (c *Cache) GetChain(ctx context.Context, modelID, template string) (*Chain, error) {
	key := chainKey{model: modelID, template: template}
	c.mu.RLock()
	ch, ok := c.chains[key]
	c.mu.RUnlock()
	if ok {
		return ch, nil
	}
	v, err := fill(ctx, &c.group, modelID+"\x00"+template, func(ctx context.Context) (any, error) {
		c.mu.RLock()
		ch, ok := c.chains[key]
		c.mu.RUnlock()
		if ok {
			return ch, nil
		}
		m, err := c.models.GetModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		ch = New(m, template)
		c.mu.Lock()
		c.chains[key] = ch
		c.mu.Unlock()
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Chain), nil
}

// Len returns the number of cached chains.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chains)
}
