// Package retrieval owns the review index: populating the vector store from
// the configured source once, and answering similarity queries with
// maximal-marginal-relevance selection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"genie/internal/domain"
	"genie/internal/ingest"
)

const DefaultBatchSize = 50

// Config controls where the index is populated from.
type Config struct {
	Source    string
	Ingest    ingest.Options
	BatchSize int
	// Concurrency bounds parallel embedding calls within one batch.
	Concurrency int
}

// Options are the per-query selection parameters.
type Options struct {
	K              int
	FetchK         int
	LambdaMult     float64
	ScoreThreshold float64
	Filter         domain.Filter
}

// DefaultOptions returns k=3, fetch_k=10, lambda_mult=0.7 without a threshold.
func DefaultOptions() Options {
	return Options{K: 3, FetchK: 10, LambdaMult: 0.7}
}

// Stats describes the current state of the index.
type Stats struct {
	Backend  string
	Embedder string
	Count    int
	Source   string
}

// Index couples an embedder with a vector store. It is safe for concurrent use.
type Index struct {
	store    domain.VectorStore
	embedder domain.Embedder
	cfg      Config
	logger   arbor.ILogger

	mu    sync.Mutex
	ready bool
}

func NewIndex(store domain.VectorStore, embedder domain.Embedder, cfg Config, logger arbor.ILogger) *Index {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Index{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// EnsureReady populates the store from the source unless it already holds
// items. Only one caller populates; concurrent callers wait for it. A missing
// source is a configuration error; an unreadable one is logged and leaves the
// index empty.
func (x *Index) EnsureReady(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ready {
		return nil
	}
	n, err := x.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("%w: count %s items: %v", domain.ErrRetrieval, x.store.Name(), err)
	}
	if n > 0 {
		x.logger.Info().Str("backend", x.store.Name()).Int("items", n).Msg("Using existing index")
		x.ready = true
		return nil
	}
	if err := x.populate(ctx); err != nil {
		return err
	}
	x.ready = true
	return nil
}

// Reindex clears the store and populates it again from the source.
func (x *Index) Reindex(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ready = false
	if err := x.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s: %w", x.store.Name(), err)
	}
	if err := x.populate(ctx); err != nil {
		return err
	}
	x.ready = true
	return nil
}

func (x *Index) populate(ctx context.Context) error {
	if x.cfg.Source == "" {
		return fmt.Errorf("%w: no review source configured", domain.ErrConfiguration)
	}
	if _, err := os.Stat(x.cfg.Source); err != nil {
		return fmt.Errorf("%w: review source %s does not exist", domain.ErrConfiguration, x.cfg.Source)
	}
	start := time.Now()
	units, _, err := ingest.Load(x.cfg.Source, x.cfg.Ingest)
	if err != nil {
		x.logger.Error().Err(err).Str("source", x.cfg.Source).Msg("Failed to load reviews, index stays empty")
		return nil
	}
	if len(units) == 0 {
		x.logger.Warn().Str("source", x.cfg.Source).Msg("No reviews to index")
		return nil
	}
	x.logger.Info().Int("units", len(units)).Int("batch_size", x.cfg.BatchSize).Msg("Indexing reviews")
	for lo := 0; lo < len(units); lo += x.cfg.BatchSize {
		hi := min(lo+x.cfg.BatchSize, len(units))
		batch := units[lo:hi]
		vectors, err := x.embedBatch(ctx, batch)
		if err == nil {
			if err = x.store.Add(ctx, batch, vectors); err != nil {
				err = fmt.Errorf("%w: insert batch %d-%d: %v", domain.ErrRetrieval, lo, hi, err)
			}
		}
		if err != nil {
			x.discardPartial(ctx, lo)
			return err
		}
		x.logger.Debug().Int("done", hi).Int("total", len(units)).Msg("Indexed batch")
	}
	x.logger.Info().Int("units", len(units)).Dur("elapsed", time.Since(start)).Msg("Index ready")
	return nil
}

// discardPartial empties the store after a failed population so the next
// EnsureReady starts over instead of reusing an incomplete index.
func (x *Index) discardPartial(ctx context.Context, indexed int) {
	if err := x.store.Reset(context.WithoutCancel(ctx)); err != nil {
		x.logger.Error().Err(err).Str("backend", x.store.Name()).Int("indexed", indexed).Msg("Failed to discard partial index")
		return
	}
	x.logger.Warn().Str("backend", x.store.Name()).Int("indexed", indexed).Msg("Discarded partial index")
}

func (x *Index) embedBatch(ctx context.Context, batch []domain.TextUnit) ([][]float32, error) {
	vectors := make([][]float32, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Concurrency)
	for i := range batch {
		g.Go(func() error {
			v, err := x.embedder.Embed(gctx, batch[i].Content)
			if err != nil {
				return fmt.Errorf("%w: embed unit %s: %v", domain.ErrRetrieval, batch[i].ID, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Retrieve returns up to opts.K units for query in selection order. It fetches
// opts.FetchK nearest candidates, drops those below opts.ScoreThreshold, then
// applies maximal marginal relevance with opts.LambdaMult.
func (x *Index) Retrieve(ctx context.Context, query string, opts Options) ([]domain.TextUnit, error) {
	if err := x.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if opts.K <= 0 {
		return nil, nil
	}
	fetch := max(opts.FetchK, opts.K)
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrieval, err)
	}
	if isZero(vec) {
		x.logger.Debug().Str("query", query).Msg("Query has no usable terms")
		return nil, nil
	}
	candidates, err := x.store.Search(ctx, vec, fetch, opts.Filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrRetrieval, x.store.Name(), err)
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if math.IsNaN(c.Similarity) || (opts.ScoreThreshold > 0 && c.Similarity < opts.ScoreThreshold) {
			continue
		}
		kept = append(kept, c)
	}
	selected := SelectMMR(vec, kept, opts.K, opts.LambdaMult)
	units := make([]domain.TextUnit, len(selected))
	for i, c := range selected {
		units[i] = c.Unit
	}
	return units, nil
}

// Retriever binds fixed options, satisfying domain.Retriever.
func (x *Index) Retriever(opts Options) domain.Retriever {
	return boundRetriever{index: x, opts: opts}
}

type boundRetriever struct {
	index *Index
	opts  Options
}

func (b boundRetriever) Retrieve(ctx context.Context, query string) ([]domain.TextUnit, error) {
	return b.index.Retrieve(ctx, query, b.opts)
}

// Stats reports the store's item count without populating it.
func (x *Index) Stats(ctx context.Context) (Stats, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count %s items: %v", domain.ErrRetrieval, x.store.Name(), err)
	}
	return Stats{
		Backend:  x.store.Name(),
		Embedder: x.embedder.Name(),
		Count:    n,
		Source:   x.cfg.Source,
	}, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
