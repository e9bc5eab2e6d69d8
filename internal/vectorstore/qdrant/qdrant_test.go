package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
)

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// fakeQdrant serves the subset of the Qdrant REST API the store uses.
type fakeQdrant struct {
	mu         sync.Mutex
	exists     bool
	size       int
	points     []point
	lastSearch map[string]any
	apiKeys    []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	path := strings.TrimPrefix(r.URL.Path, "/collections/reviews")
	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.exists {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	case path == "" && r.Method == http.MethodPut:
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.exists, f.size = true, body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true}`))
	case path == "" && r.Method == http.MethodDelete:
		if !f.exists {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f.exists, f.points = false, nil
		_, _ = w.Write([]byte(`{"result":true}`))
	case !f.exists:
		http.Error(w, "not found", http.StatusNotFound)
	case path == "/points" && r.Method == http.MethodPut:
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case path == "/points/count":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.points)}})
	case path == "/points/search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		res := make([]map[string]any, 0, len(f.points))
		for i := len(f.points) - 1; i >= 0; i-- {
			p := f.points[i]
			res = append(res, map[string]any{"id": p.ID, "score": 0.9 - 0.1*float64(len(res)), "payload": p.Payload, "vector": p.Vector})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": res})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func newStore(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "reviews"}), fake
}

func sample() ([]domain.TextUnit, [][]float32) {
	return []domain.TextUnit{
			{ID: "0", Content: "Restaurant: A\nReview: good", Metadata: domain.Metadata{Title: "A", Rating: "5", Date: "d1", Source: domain.SourceCSV, DocID: "0"}},
			{ID: "1", Content: "Restaurant: B\nReview: bad", Metadata: domain.Metadata{Title: "B", Rating: "1", Date: "d2", Source: domain.SourceCSV, DocID: "1"}},
		},
		[][]float32{{1, 0}, {0, 1}}
}

func TestStorage_CountMissingCollection(t *testing.T) {
	s, _ := newStore(t)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Search(context.Background(), []float32{1, 0}, 3, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_AddCreatesCollectionAndSearch(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	us, vs := sample()
	require.NoError(t, s.Add(ctx, us, vs))
	assert.True(t, fake.exists)
	assert.Equal(t, 2, fake.size)
	assert.Equal(t, s.PointID("0"), fake.points[0].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Search(ctx, []float32{0, 1}, 2, domain.Filter{Rating: "1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, us[1], got[0].Unit)
	assert.Equal(t, []float32{0, 1}, got[0].Embedding)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-9)

	assert.Equal(t, true, fake.lastSearch["with_vector"])
	filter := fake.lastSearch["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, "rating", must[0].(map[string]any)["key"])
	assert.Contains(t, fake.apiKeys, "secret")
}

func TestStorage_Reset(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	us, vs := sample()
	require.NoError(t, s.Add(ctx, us, vs))
	require.NoError(t, s.Reset(ctx))
	assert.False(t, fake.exists)
	require.NoError(t, s.Reset(ctx))

	require.NoError(t, s.Add(ctx, us[:1], vs[:1]))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPointID_Stable(t *testing.T) {
	s := NewStorage(Config{URL: "http://x", Collection: "reviews"})
	assert.Equal(t, s.PointID("7"), s.PointID("7"))
	assert.NotEqual(t, s.PointID("7"), s.PointID("8"))
}
