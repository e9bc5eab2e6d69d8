package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
	"genie/internal/embedding/hashing"
	"genie/internal/logging"
	"genie/internal/vectorstore/memory"
)

const reviewsCSV = `Title,Date,Rating,Review
Luigi's Pizzeria,2024-03-01,5,"Thin crispy crust, fresh basil and a smoky wood oven."
Corner Slice,2024-03-02,2,
Green Garden Pies,2024-03-03,4,"Excellent gluten free dough and vegan mozzarella options."
`

// countingStore records how often Add is called.
type countingStore struct {
	*memory.Storage
	adds  atomic.Int32
	added atomic.Int32
}

func (c *countingStore) Add(ctx context.Context, units []domain.TextUnit, vectors [][]float32) error {
	c.adds.Add(1)
	c.added.Add(int32(len(units)))
	return c.Storage.Add(ctx, units, vectors)
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }
func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

// flakyEmbedder fails every call after the first okCalls while failing is set.
type flakyEmbedder struct {
	*hashing.Embedder
	okCalls int32
	calls   atomic.Int32
	failing atomic.Bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.calls.Add(1) > f.okCalls && f.failing.Load() {
		return nil, errors.New("backend hiccup")
	}
	return f.Embedder.Embed(ctx, text)
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviews.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newIndex(t *testing.T, source string, batch int) (*Index, *countingStore) {
	t.Helper()
	store := &countingStore{Storage: memory.NewStorage()}
	return NewIndex(store, hashing.NewEmbedder(256), Config{Source: source, BatchSize: batch}, logging.Discard()), store
}

func TestRetrieve_EndToEnd(t *testing.T) {
	idx, store := newIndex(t, writeSource(t, reviewsCSV), 0)
	ctx := context.Background()

	got, err := idx.Retrieve(ctx, "gluten free vegan options", Options{K: 3, FetchK: 10, LambdaMult: 0.7})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "Green Garden Pies", got[0].Metadata.Title)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, int32(2), store.added.Load())
}

func TestEnsureReady_Batches(t *testing.T) {
	rows := "Title,Review,Rating,Date\n"
	for i := 0; i < 7; i++ {
		rows += "Place,Tasty slice number " + string(rune('a'+i)) + ",4,2024\n"
	}
	idx, store := newIndex(t, writeSource(t, rows), 3)
	require.NoError(t, idx.EnsureReady(context.Background()))
	assert.Equal(t, int32(3), store.adds.Load())
	assert.Equal(t, int32(7), store.added.Load())
}

func TestEnsureReady_FailedBatchDiscardsPartialIndex(t *testing.T) {
	rows := "Title,Review,Rating,Date\n"
	for i := 0; i < 6; i++ {
		rows += "Place,Tasty slice number " + string(rune('a'+i)) + ",4,2024\n"
	}
	store := &countingStore{Storage: memory.NewStorage()}
	emb := &flakyEmbedder{Embedder: hashing.NewEmbedder(64), okCalls: 3}
	emb.failing.Store(true)
	idx := NewIndex(store, emb, Config{Source: writeSource(t, rows), BatchSize: 3}, logging.Discard())
	ctx := context.Background()

	err := idx.EnsureReady(ctx)
	require.ErrorIs(t, err, domain.ErrRetrieval)
	assert.Equal(t, int32(1), store.adds.Load())
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	emb.failing.Store(false)
	require.NoError(t, idx.EnsureReady(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestEnsureReady_OnceUnderConcurrency(t *testing.T) {
	idx, store := newIndex(t, writeSource(t, reviewsCSV), 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, idx.EnsureReady(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.adds.Load())
	n, _ := store.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestEnsureReady_ReusesPopulatedStore(t *testing.T) {
	store := &countingStore{Storage: memory.NewStorage()}
	require.NoError(t, store.Storage.Add(context.Background(),
		[]domain.TextUnit{{ID: "x", Content: "existing"}}, [][]float32{{1, 0}}))

	idx := NewIndex(store, hashing.NewEmbedder(2), Config{Source: "/does/not/exist.csv"}, logging.Discard())
	require.NoError(t, idx.EnsureReady(context.Background()))
	assert.Zero(t, store.adds.Load())
}

func TestEnsureReady_MissingSourceIsConfigurationError(t *testing.T) {
	idx, _ := newIndex(t, filepath.Join(t.TempDir(), "nope.csv"), 0)
	err := idx.EnsureReady(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "nope.csv")
}

func TestEnsureReady_EmptySourceIsNotFatal(t *testing.T) {
	idx, store := newIndex(t, writeSource(t, "Title,Review\nA,\nB,nan\n"), 0)
	require.NoError(t, idx.EnsureReady(context.Background()))
	assert.Zero(t, store.adds.Load())

	got, err := idx.Retrieve(context.Background(), "pizza", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_EmbedFailureIsRetrievalError(t *testing.T) {
	store := memory.NewStorage()
	require.NoError(t, store.Add(context.Background(),
		[]domain.TextUnit{{ID: "x", Content: "existing"}}, [][]float32{{1, 0}}))
	idx := NewIndex(store, failingEmbedder{}, Config{}, logging.Discard())

	_, err := idx.Retrieve(context.Background(), "pizza", DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.Contains(t, err.Error(), "embedding backend down")
}

func TestRetrieve_ScoreThresholdAndFilter(t *testing.T) {
	idx, _ := newIndex(t, writeSource(t, reviewsCSV), 0)
	ctx := context.Background()

	got, err := idx.Retrieve(ctx, "gluten free vegan options", Options{K: 3, FetchK: 10, LambdaMult: 0.7, ScoreThreshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.Retrieve(ctx, "gluten free vegan options", Options{K: 3, FetchK: 10, LambdaMult: 0.7, Filter: domain.Filter{Rating: "5"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0", got[0].ID)
}

func TestReindexAndStats(t *testing.T) {
	idx, store := newIndex(t, writeSource(t, reviewsCSV), 0)
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))
	require.NoError(t, idx.Reindex(ctx))
	assert.Equal(t, int32(2), store.adds.Load())

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, "hashing", st.Embedder)
}

func TestRetriever_BindsOptions(t *testing.T) {
	idx, _ := newIndex(t, writeSource(t, reviewsCSV), 0)
	r := idx.Retriever(Options{K: 1, FetchK: 10, LambdaMult: 0.7})
	got, err := r.Retrieve(context.Background(), "crispy crust basil wood oven")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0", got[0].ID)
}
