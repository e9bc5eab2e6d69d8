// Package memory is an in-process vector store using brute-force cosine similarity.
package memory

import (
	"context"
	"sort"
	"sync"

	"genie/internal/domain"
	"genie/internal/embedding"
	"genie/internal/vectorstore"
)

// Storage keeps units and vectors in memory. Adding a unit whose id is
// already stored replaces it.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	units     []domain.TextUnit
	index     map[string]int
}

func NewStorage() *Storage { return &Storage{index: make(map[string]int)} }

func (s *Storage) Name() string { return "memory" }

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units), nil
}

func (s *Storage) Add(ctx context.Context, units []domain.TextUnit, vectors [][]float32) error {
	dim, err := vectorstore.ValidateBatch(units, vectors)
	if err != nil || dim == 0 {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = dim
	}
	if dim != s.dimension {
		return vectorstore.ErrDimensionMismatch
	}
	for i, u := range units {
		v := append([]float32(nil), vectors[i]...)
		if j, ok := s.index[u.ID]; ok {
			s.units[j], s.vectors[j] = u, v
			continue
		}
		s.index[u.ID] = len(s.units)
		s.units = append(s.units, u)
		s.vectors = append(s.vectors, v)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, n int, filter domain.Filter) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil, nil
	}
	out := make([]domain.Candidate, 0, len(s.units))
	for i, u := range s.units {
		if !filter.Matches(u.Metadata) {
			continue
		}
		out = append(out, domain.Candidate{
			Unit:       u,
			Embedding:  s.vectors[i],
			Similarity: embedding.Cosine(s.vectors[i], vector),
		})
	}
	// insertion order breaks ties
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}

func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.vectors = nil
	s.units = nil
	s.index = make(map[string]int)
	return nil
}
