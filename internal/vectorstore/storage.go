// Package vectorstore holds checks shared by the domain.VectorStore backends.
package vectorstore

import (
	"errors"
	"fmt"

	"genie/internal/domain"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// collection's.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ValidateBatch checks that units and vectors pair up and share one dimension.
// It returns that dimension, or 0 for an empty batch.
func ValidateBatch(units []domain.TextUnit, vectors [][]float32) (int, error) {
	if len(units) != len(vectors) {
		return 0, fmt.Errorf("%w: %d units but %d vectors", domain.ErrInvalidInput, len(units), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector for unit %q", domain.ErrInvalidInput, units[0].ID)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: unit %q has %d, want %d", ErrDimensionMismatch, units[i].ID, len(v), dim)
		}
	}
	return dim, nil
}
