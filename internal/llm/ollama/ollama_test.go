package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
	"genie/internal/llm"
)

func TestGenerate_SendsFixedOptions(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "Try Luigi's.", Done: true})
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{BaseURL: srv.URL + "/", Model: "llama3.2:1b", Params: llm.DefaultParams()})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "Where should I eat?")
	require.NoError(t, err)

	assert.Equal(t, "Try Luigi's.", out)
	assert.Equal(t, "llama3.2:1b", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.1, got.Options.Temperature)
	assert.Equal(t, 0.9, got.Options.TopP)
	assert.Equal(t, 1.1, got.Options.RepeatPenalty)
	assert.Equal(t, 300, got.Options.NumPredict)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{BaseURL: srv.URL, Model: "x"})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGenerate_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{BaseURL: srv.URL, Model: "x"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"},{"name":"mistral:latest"}]}`))
	}))
	defer srv.Close()

	for model, ok := range map[string]bool{"llama3.2:1b": true, "mistral": true, "gemma3:1b": false} {
		g, err := NewGenerator(Config{BaseURL: srv.URL, Model: model})
		require.NoError(t, err)
		if ok {
			assert.NoError(t, g.Ping(context.Background()), model)
		} else {
			assert.Error(t, g.Ping(context.Background()), model)
		}
	}
}

func TestNewGenerator_RequiresModel(t *testing.T) {
	_, err := NewGenerator(Config{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
