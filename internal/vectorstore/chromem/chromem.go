// Package chromem is the default vector store: an embedded chromem-go
// collection, persisted to disk when a directory is configured.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"genie/internal/domain"
	"genie/internal/vectorstore"
)

// Config configures the chromem store.
type Config struct {
	// PersistDir is the database directory; empty keeps the collection in memory.
	PersistDir string
	Collection string
	Compress   bool
}

// Storage is a domain.VectorStore over one chromem collection.
type Storage struct {
	mu    sync.RWMutex
	db    *chromem.DB
	name  string
	embed chromem.EmbeddingFunc
	col   *chromem.Collection
}

// NewStorage opens (or creates) the collection. Vectors are always computed by
// the caller; embedder only backs chromem's own text queries.
func NewStorage(cfg Config, embedder domain.Embedder) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: chromem collection name is empty", domain.ErrConfiguration)
	}
	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistDir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.PersistDir, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", cfg.PersistDir, err)
		}
	}
	s := &Storage{db: db, name: cfg.Collection, embed: embedFunc(embedder)}
	if s.col, err = db.GetOrCreateCollection(cfg.Collection, nil, s.embed); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}
	return s, nil
}

func embedFunc(e domain.Embedder) chromem.EmbeddingFunc {
	if e == nil {
		return func(context.Context, string) ([]float32, error) {
			return nil, errors.New("no embedder configured for chromem collection")
		}
	}
	return e.Embed
}

func (s *Storage) Name() string { return "chromem" }

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count(), nil
}

func (s *Storage) Add(ctx context.Context, units []domain.TextUnit, vectors [][]float32) error {
	if _, err := vectorstore.ValidateBatch(units, vectors); err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(units))
	for i, u := range units {
		docs[i] = chromem.Document{
			ID:        u.ID,
			Metadata:  u.Metadata.Map(),
			Embedding: vectors[i],
			Content:   u.Content,
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem add %d documents: %w", len(docs), err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, n int, filter domain.Filter) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.col.Count()
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil, nil
	}
	res, err := s.col.QueryEmbedding(ctx, vector, n, filter.Where(), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]domain.Candidate, 0, len(res))
	for _, r := range res {
		out = append(out, domain.Candidate{
			Unit: domain.TextUnit{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: domain.MetadataFromMap(r.Metadata),
			},
			Embedding:  r.Embedding,
			Similarity: float64(r.Similarity),
		})
	}
	return out, nil
}

// Reset drops the collection and starts an empty one under the same name.
func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.name, err)
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, s.embed)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", s.name, err)
	}
	s.col = col
	return nil
}
