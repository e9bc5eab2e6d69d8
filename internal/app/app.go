// Package app assembles the components named in the configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"genie/internal/chain"
	"genie/internal/chunker"
	"genie/internal/config"
	"genie/internal/domain"
	"genie/internal/embedding/hashing"
	ollamaembed "genie/internal/embedding/ollama"
	openaiembed "genie/internal/embedding/openai"
	"genie/internal/ingest"
	"genie/internal/llm"
	ollamallm "genie/internal/llm/ollama"
	openaillm "genie/internal/llm/openai"
	"genie/internal/retrieval"
	"genie/internal/service"
	"genie/internal/vectorstore/chromem"
	"genie/internal/vectorstore/memory"
	"genie/internal/vectorstore/qdrant"
)

// Options override parts of the configuration for one run.
type Options struct {
	// Model is a catalog alias or a full model id; empty uses the default.
	Model string
	// Prompt names a configured template; empty uses the active one.
	Prompt string
}

// App is the wired application.
type App struct {
	Config   *config.AppConfig
	Logger   arbor.ILogger
	Embedder domain.Embedder
	Store    domain.VectorStore
	Index    *retrieval.Index
	Chains   *chain.Cache
	Genie    *service.Genie

	modelID  string
	template string
}

// New wires every component from cfg. It performs no network calls.
func New(cfg *config.AppConfig, logger arbor.ILogger, opts Options) (*App, error) {
	emb, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(cfg, emb)
	if err != nil {
		return nil, err
	}
	tmpl, err := cfg.Template(opts.Prompt)
	if err != nil {
		return nil, err
	}

	index := retrieval.NewIndex(store, emb, retrieval.Config{
		Source:    cfg.Data.Source,
		Ingest:    IngestOptions(cfg),
		BatchSize: cfg.VectorStore.BatchSize,
	}, logger)

	models := chain.NewModelCache(ModelFactory(cfg), logger)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Embedder: emb,
		Store:    store,
		Index:    index,
		Chains:   chain.NewCache(models),
		Genie: service.New(service.Config{
			ContextBudget:     cfg.Retrieval.ContextBudget,
			GenerationTimeout: cfg.GenerationTimeout(),
		}, logger),
		modelID:  cfg.ModelID(opts.Model),
		template: tmpl,
	}, nil
}

// ModelID is the generation model the app answers with.
func (a *App) ModelID() string { return a.modelID }

// RetrievalOptions returns the configured selection parameters.
func (a *App) RetrievalOptions() retrieval.Options {
	r := a.Config.Retrieval
	return retrieval.Options{
		K:              r.K,
		FetchK:         r.FetchK,
		LambdaMult:     r.LambdaMult,
		ScoreThreshold: r.ScoreThreshold,
	}
}

// Start populates the index if needed and warms the chain cache. A missing
// review source aborts here.
func (a *App) Start(ctx context.Context) error {
	start := time.Now()
	if err := a.Index.EnsureReady(ctx); err != nil {
		return err
	}
	if _, err := a.Chains.GetChain(ctx, a.modelID, a.template); err != nil {
		return err
	}
	a.Logger.Info().Dur("elapsed", time.Since(start)).Str("model", a.modelID).Msg("Startup completed")
	return nil
}

// Ask answers one question with the configured chain and retriever.
func (a *App) Ask(ctx context.Context, question string) (string, service.Trace) {
	ch, err := a.Chains.GetChain(ctx, a.modelID, a.template)
	if err != nil {
		a.Logger.Error().Err(err).Str("model", a.modelID).Msg("Failed to build chain")
		return service.ErrorPrefix + err.Error(), service.Trace{Err: err}
	}
	return a.Genie.HandleTraced(ctx, ch, a.Index.Retriever(a.RetrievalOptions()), question)
}

// Answer is Ask without the trace.
func (a *App) Answer(ctx context.Context, question string) string {
	answer, _ := a.Ask(ctx, question)
	return answer
}

// IngestOptions maps the data and chunking sections onto reader options.
func IngestOptions(cfg *config.AppConfig) ingest.Options {
	opts := ingest.Options{
		Columns: ingest.Columns{
			Title:  cfg.Data.Columns.Title,
			Review: cfg.Data.Columns.Review,
			Rating: cfg.Data.Columns.Rating,
			Date:   cfg.Data.Columns.Date,
		},
		Sheet: cfg.Data.Sheet,
	}
	if cfg.VectorStore.Chunking {
		opts.Chunker = chunker.NewSentenceChunker(cfg.VectorStore.ChunkSize, cfg.VectorStore.ChunkOverlap)
	}
	return opts
}

// NewEmbedder builds the configured embedder.
func NewEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "ollama":
		return ollamaembed.NewEmbedder(cfg.EmbeddingModelID(), cfg.Embedder.BaseURL), nil
	case "openai":
		c, err := openaiembed.NewClient(openaiembed.Config{
			BaseURL:   cfg.Embedder.BaseURL,
			APIKeyEnv: cfg.Embedder.APIKeyEnv,
			Model:     cfg.EmbeddingModelID(),
			Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder type %q", domain.ErrConfiguration, cfg.Embedder.Type)
	}
}

// NewStore builds the configured vector store.
func NewStore(cfg *config.AppConfig, emb domain.Embedder) (domain.VectorStore, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "chromem":
		s, err := chromem.NewStorage(chromem.Config{PersistDir: vs.PersistDir, Collection: vs.Collection}, emb)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		if vs.Qdrant == nil || vs.Qdrant.URL == "" {
			return nil, fmt.Errorf("%w: qdrant url missing", domain.ErrConfiguration)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Collection,
			Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrConfiguration, vs.Type)
	}
}

// ModelFactory returns the chain.ModelFactory for the configured backend,
// applying the fixed sampling parameters to every handle.
func ModelFactory(cfg *config.AppConfig) chain.ModelFactory {
	params := llm.Params{
		Temperature:   cfg.LLM.Temperature,
		TopP:          cfg.LLM.TopP,
		RepeatPenalty: cfg.LLM.RepeatPenalty,
		MaxTokens:     cfg.LLM.MaxTokens,
	}
	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second
	return func(ctx context.Context, modelID string) (domain.Generator, error) {
		switch cfg.LLM.Type {
		case "ollama":
			g, err := ollamallm.NewGenerator(ollamallm.Config{
				BaseURL: cfg.LLM.BaseURL,
				Model:   modelID,
				Timeout: timeout,
				Params:  params,
			})
			if err != nil {
				return nil, err
			}
			return g, nil
		case "openai":
			g, err := openaillm.NewGenerator(openaillm.Config{
				BaseURL:   cfg.LLM.BaseURL,
				APIKeyEnv: cfg.LLM.APIKeyEnv,
				Model:     modelID,
				Timeout:   timeout,
				Params:    params,
			})
			if err != nil {
				return nil, err
			}
			return g, nil
		default:
			return nil, fmt.Errorf("%w: unknown llm type %q", domain.ErrConfiguration, cfg.LLM.Type)
		}
	}
}
