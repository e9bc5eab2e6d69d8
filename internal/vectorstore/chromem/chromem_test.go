package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
)

func units() ([]domain.TextUnit, [][]float32) {
	mk := func(id, title, rating string) domain.TextUnit {
		return domain.TextUnit{
			ID:      id,
			Content: "Restaurant: " + title + "\nReview: fine",
			Metadata: domain.Metadata{
				Title: title, Rating: domain.Rating(rating), Date: "2024-01-01",
				Source: domain.SourceCSV, DocID: id,
			},
		}
	}
	return []domain.TextUnit{mk("0", "Luigi's", "5"), mk("1", "Corner", "2"), mk("2", "Mama", "5")},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.6, 0.8, 0}}
}

func TestStorage_AddSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(Config{Collection: "reviews"}, nil)
	require.NoError(t, err)

	us, vs := units()
	require.NoError(t, s.Add(ctx, us, vs))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.Search(ctx, []float32{1, 0, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0", got[0].Unit.ID)
	assert.Equal(t, us[0].Metadata, got[0].Unit.Metadata)
	assert.Equal(t, us[0].Content, got[0].Unit.Content)
	assert.Len(t, got[0].Embedding, 3)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
	assert.Equal(t, "2", got[1].Unit.ID)
}

func TestStorage_SearchFilter(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(Config{Collection: "reviews"}, nil)
	require.NoError(t, err)
	us, vs := units()
	require.NoError(t, s.Add(ctx, us, vs))

	got, err := s.Search(ctx, []float32{0, 1, 0}, 3, domain.Filter{Rating: "5"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, domain.Rating("5"), c.Unit.Metadata.Rating)
	}
}

func TestStorage_EmptySearch(t *testing.T) {
	s, err := NewStorage(Config{Collection: "reviews"}, nil)
	require.NoError(t, err)
	got, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewStorage(Config{PersistDir: dir, Collection: "reviews"}, nil)
	require.NoError(t, err)
	us, vs := units()
	require.NoError(t, s.Add(ctx, us, vs))

	reopened, err := NewStorage(Config{PersistDir: dir, Collection: "reviews"}, nil)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStorage_Reset(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(Config{Collection: "reviews"}, nil)
	require.NoError(t, err)
	us, vs := units()
	require.NoError(t, s.Add(ctx, us, vs))

	require.NoError(t, s.Reset(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewStorage_RequiresCollection(t *testing.T) {
	_, err := NewStorage(Config{}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
