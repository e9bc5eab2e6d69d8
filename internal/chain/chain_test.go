package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
	"genie/internal/logging"
)

type stubGenerator struct {
	model   string
	prompts []string
	err     error
	mu      sync.Mutex
}

func (s *stubGenerator) Model() string { return s.model }

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return "answer from " + s.model, nil
}

func countingFactory(calls *atomic.Int32, delay time.Duration) ModelFactory {
	return func(ctx context.Context, modelID string) (domain.Generator, error) {
		calls.Add(1)
		time.Sleep(delay)
		return &stubGenerator{model: modelID}, nil
	}
}

const tmpl = "Reviews: {reviews}\nQuestion: {question}"

func TestChain_Invoke(t *testing.T) {
	gen := &stubGenerator{model: "llama3.2:1b"}
	ch := New(gen, tmpl)
	out, err := ch.Invoke(context.Background(), map[string]string{"reviews": "R", "question": "Q?"})
	require.NoError(t, err)
	assert.Equal(t, "answer from llama3.2:1b", out)
	assert.Equal(t, []string{"Reviews: R\nQuestion: Q?"}, gen.prompts)
	assert.Equal(t, "llama3.2:1b", ch.Model())
}

func TestChain_InvokeWrapsGenerationError(t *testing.T) {
	gen := &stubGenerator{model: "m", err: errors.New("connection refused")}
	_, err := New(gen, tmpl).Invoke(context.Background(), map[string]string{"reviews": "R", "question": "Q"})
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, gen.prompts, 1)
}

func TestChain_InvokeMissingSlot(t *testing.T) {
	gen := &stubGenerator{model: "m"}
	_, err := New(gen, tmpl).Invoke(context.Background(), map[string]string{"question": "Q"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, gen.prompts)
}

func TestCache_SameKeySameInstance(t *testing.T) {
	var calls atomic.Int32
	cache := NewCache(NewModelCache(countingFactory(&calls, 0), logging.Discard()))
	ctx := context.Background()

	a, err := cache.GetChain(ctx, "llama3.2:1b", tmpl)
	require.NoError(t, err)
	b, err := cache.GetChain(ctx, "llama3.2:1b", tmpl)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := cache.GetChain(ctx, "llama3.2:1b", "Short: {reviews} {question}")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 1, cache.Models().Len())
}

func TestModelCache_SameInstance(t *testing.T) {
	var calls atomic.Int32
	models := NewModelCache(countingFactory(&calls, 0), logging.Discard())
	a, err := models.GetModel(context.Background(), "gemma3:1b")
	require.NoError(t, err)
	b, err := models.GetModel(context.Background(), "gemma3:1b")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := models.GetModel(context.Background(), "mistral:7b")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ConcurrentFirstUse(t *testing.T) {
	var calls atomic.Int32
	cache := NewCache(NewModelCache(countingFactory(&calls, 20*time.Millisecond), logging.Discard()))

	const n = 32
	got := make([]*Chain, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := cache.GetChain(context.Background(), "llama3.2:1b", tmpl)
			assert.NoError(t, err)
			got[i] = ch
		}()
	}
	wg.Wait()
	for _, ch := range got {
		assert.Same(t, got[0], ch)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestModelCache_FailureNotCached(t *testing.T) {
	var calls atomic.Int32
	models := NewModelCache(func(ctx context.Context, id string) (domain.Generator, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("ollama not reachable")
		}
		return &stubGenerator{model: id}, nil
	}, logging.Discard())

	_, err := models.GetModel(context.Background(), "m")
	require.Error(t, err)
	g, err := models.GetModel(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, "m", g.Model())
}

func TestModelCache_CanceledCallerDoesNotFailFill(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		calls atomic.Int32
		once  sync.Once
	)
	factory := func(ctx context.Context, modelID string) (domain.Generator, error) {
		calls.Add(1)
		once.Do(func() { close(entered) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &stubGenerator{model: modelID}, nil
	}
	models := NewModelCache(factory, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := models.GetModel(ctx, "llama3.2:1b")
		first <- err
	}()
	<-entered

	waiter := make(chan domain.Generator, 1)
	go func() {
		m, err := models.GetModel(context.Background(), "llama3.2:1b")
		assert.NoError(t, err)
		waiter <- m
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(release)

	m := <-waiter
	require.NotNil(t, m)
	cached, err := models.GetModel(context.Background(), "llama3.2:1b")
	require.NoError(t, err)
	assert.Same(t, m, cached)
	assert.Equal(t, int32(1), calls.Load())
}
