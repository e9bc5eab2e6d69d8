package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"genie/internal/domain"
	"genie/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first insert.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu    sync.Mutex
	ready bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

// PointID maps a unit id to the UUID Qdrant stores it under.
func (s *Storage) PointID(unitID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.collection+"/"+unitID)).String()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Add(ctx context.Context, units []domain.TextUnit, vectors [][]float32) error {
	dim, err := vectorstore.ValidateBatch(units, vectors)
	if err != nil || dim == 0 {
		return err
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}
	points := make([]map[string]any, len(units))
	for i, u := range units {
		payload := make(map[string]any, 7)
		for k, v := range u.Metadata.Map() {
			payload[k] = v
		}
		payload["unit_id"] = u.ID
		payload["content"] = u.Content
		points[i] = map[string]any{
			"id":      s.PointID(u.ID),
			"vector":  vectors[i],
			"payload": payload,
		}
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, n int, filter domain.Filter) ([]domain.Candidate, error) {
	if n <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        n,
		"with_payload": true,
		"with_vector":  true,
	}
	if where := filter.Where(); where != nil {
		must := make([]map[string]any, 0, len(where))
		for k, v := range where {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
		}
		req["filter"] = map[string]any{"must": must}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		meta := make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			if str, ok := v.(string); ok {
				meta[k] = str
			}
		}
		out = append(out, domain.Candidate{
			Unit: domain.TextUnit{
				ID:       meta["unit_id"],
				Content:  meta["content"],
				Metadata: domain.MetadataFromMap(meta),
			},
			Embedding:  r.Vector,
			Similarity: r.Score,
		})
	}
	return out, nil
}

// Reset drops the collection; the next Add recreates it.
func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.ready = false
	return nil
}

func (s *Storage) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	switch {
	case err == nil:
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dim,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return err
		}
	default:
		return err
	}
	s.ready = true
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out. It returns the
// HTTP status (0 on transport failure) alongside any error.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
