package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"genie/internal/domain"
)

const (
	GenieTemplate = `Your name is - Pizza Genie, your tone is also of a genie.
So now always first introduce yourself then answer questions.
You are an expert in answering questions about pizza restaurants.
No need to mention your introduction for every prompt, just where is required.
Word limit - 150 words

Here are some relevant reviews  : {reviews}

Here is the question : {question}
`

	GenieTemplateFast = `Based on these reviews: {reviews}

Answer: {question}`
)

// ModelsConfig maps short model aliases to backend model identifiers.
type ModelsConfig struct {
	Default string            `yaml:"default" validate:"required"`
	Catalog map[string]string `yaml:"catalog"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string            `yaml:"type" validate:"oneof=ollama openai hashing"`
	Model       string            `yaml:"model"`
	Catalog     map[string]string `yaml:"catalog"`
	BaseURL     string            `yaml:"base_url"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	TimeoutSecs int               `yaml:"timeout_secs" validate:"gte=0"`
	Dimension   int               `yaml:"dimension" validate:"gte=0"`
}

// LLMConfig configures the generation backend and its fixed sampling parameters.
type LLMConfig struct {
	Type                  string  `yaml:"type" validate:"oneof=ollama openai"`
	BaseURL               string  `yaml:"base_url"`
	APIKeyEnv             string  `yaml:"api_key_env"`
	TimeoutSecs           int     `yaml:"timeout_secs" validate:"gte=0"`
	Temperature           float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TopP                  float64 `yaml:"top_p" validate:"gte=0,lte=1"`
	RepeatPenalty         float64 `yaml:"repeat_penalty" validate:"gte=0"`
	MaxTokens             int     `yaml:"max_tokens" validate:"gte=0"`
	GenerationTimeoutSecs int     `yaml:"generation_timeout_secs" validate:"gte=0"`
}

// PromptsConfig holds named prompt templates and the one in use.
type PromptsConfig struct {
	Active    string            `yaml:"active" validate:"required"`
	Templates map[string]string `yaml:"templates"`
}

// ColumnsConfig names the source columns for each review field.
type ColumnsConfig struct {
	Title  string `yaml:"title" validate:"required"`
	Review string `yaml:"review" validate:"required"`
	Rating string `yaml:"rating" validate:"required"`
	Date   string `yaml:"date" validate:"required"`
}

// DataConfig locates the review source.
type DataConfig struct {
	Dir     string        `yaml:"dir"`
	Source  string        `yaml:"source" validate:"required"`
	Sheet   string        `yaml:"sheet"`
	Columns ColumnsConfig `yaml:"columns"`
}

// RetrievalConfig holds the diversity-aware search parameters. ScoreThreshold
// is off at 0; a positive value drops weaker candidates before selection.
type RetrievalConfig struct {
	K              int     `yaml:"k" validate:"gt=0"`
	FetchK         int     `yaml:"fetch_k" validate:"gt=0,gtefield=K"`
	LambdaMult     float64 `yaml:"lambda_mult" validate:"gte=0,lte=1"`
	ScoreThreshold float64 `yaml:"score_threshold" validate:"gte=-1,lte=1"`
	ContextBudget  int     `yaml:"context_budget" validate:"gt=0"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type         string        `yaml:"type" validate:"oneof=chromem memory qdrant"`
	Collection   string        `yaml:"collection" validate:"required"`
	PersistDir   string        `yaml:"persist_dir"`
	BatchSize    int           `yaml:"batch_size" validate:"gt=0"`
	Chunking     bool          `yaml:"chunking"`
	ChunkSize    int           `yaml:"chunk_size" validate:"gte=0"`
	ChunkOverlap int           `yaml:"chunk_overlap" validate:"gte=0"`
	Qdrant       *QdrantConfig `yaml:"qdrant,omitempty"`
}

// WebConfig configures the HTTP chat interface.
type WebConfig struct {
	Addr        string  `yaml:"addr" validate:"required"`
	HistorySize int     `yaml:"history_size" validate:"gt=0"`
	HistoryView int     `yaml:"history_view" validate:"gt=0"`
	RatePerSec  float64 `yaml:"rate_per_sec" validate:"gte=0"`
	Burst       int     `yaml:"burst" validate:"gte=0"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Models      ModelsConfig      `yaml:"models"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Data        DataConfig        `yaml:"data"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Web         WebConfig         `yaml:"web"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/genie/config.yaml.
// If neither exists, it writes defaults to ~/.config/genie/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints and cross-references between sections.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if _, ok := c.Prompts.Templates[c.Prompts.Active]; !ok {
		return fmt.Errorf("%w: prompt template %q not defined", domain.ErrConfiguration, c.Prompts.Active)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return fmt.Errorf("%w: qdrant url missing", domain.ErrConfiguration)
	}
	return nil
}

// ModelID resolves a model alias through the catalog. Unknown names are
// returned unchanged so full identifiers can be used directly.
func (c *AppConfig) ModelID(name string) string {
	if name == "" {
		name = c.Models.Default
	}
	if id, ok := c.Models.Catalog[name]; ok {
		return id
	}
	return name
}

// EmbeddingModelID resolves the configured embedding model alias.
func (c *AppConfig) EmbeddingModelID() string {
	if id, ok := c.Embedder.Catalog[c.Embedder.Model]; ok {
		return id
	}
	return c.Embedder.Model
}

// Template returns the named prompt template, or the active one when name is empty.
func (c *AppConfig) Template(name string) (string, error) {
	if name == "" {
		name = c.Prompts.Active
	}
	tmpl, ok := c.Prompts.Templates[name]
	if !ok {
		return "", fmt.Errorf("%w: prompt template %q not defined", domain.ErrConfiguration, name)
	}
	return tmpl, nil
}

// GenerationTimeout is the upper bound on one generation call.
func (c *AppConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.LLM.GenerationTimeoutSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "genie", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Models: ModelsConfig{
			Default: "llama1b",
			Catalog: map[string]string{
				"llama3b":  "llama3.2:3b",
				"llama1b":  "llama3.2:1b",
				"gemma":    "gemma3:1b",
				"deepseek": "deepseek-r1:1.5b",
				"mistral":  "mistral:7b",
			},
		},
		Embedder: EmbedderConfig{
			Type:  "ollama",
			Model: "large",
			Catalog: map[string]string{
				"large": "mxbai-embed-large",
				"base":  "nomic-embed-text",
				"small": "all-minilm:33m",
			},
			BaseURL:     "http://localhost:11434",
			TimeoutSecs: 30,
		},
		LLM: LLMConfig{
			Type:                  "ollama",
			BaseURL:               "http://localhost:11434",
			TimeoutSecs:           120,
			Temperature:           0.1,
			TopP:                  0.9,
			RepeatPenalty:         1.1,
			MaxTokens:             300,
			GenerationTimeoutSecs: 120,
		},
		Prompts: PromptsConfig{
			Active: "genie",
			Templates: map[string]string{
				"genie":      GenieTemplate,
				"genie_fast": GenieTemplateFast,
			},
		},
		Data: DataConfig{
			Dir:    "data",
			Source: filepath.Join("data", "realistic_restaurant_reviews.csv"),
			Columns: ColumnsConfig{
				Title:  "Title",
				Review: "Review",
				Rating: "Rating",
				Date:   "Date",
			},
		},
		Retrieval: RetrievalConfig{
			K:              3,
			FetchK:         10,
			LambdaMult:     0.7,
			ContextBudget:  1500,
		},
		VectorStore: VectorStoreConfig{
			Type:         "chromem",
			Collection:   "restaurant_reviews",
			PersistDir:   filepath.Join("data", "index"),
			BatchSize:    50,
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Web: WebConfig{
			Addr:        "0.0.0.0:7860",
			HistorySize: 10,
			HistoryView: 5,
			RatePerSec:  2,
			Burst:       4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Models.Default == "" {
		cfg.Models.Default = def.Models.Default
	}
	if cfg.Models.Catalog == nil {
		cfg.Models.Catalog = def.Models.Catalog
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Embedder.Catalog == nil {
		cfg.Embedder.Catalog = def.Embedder.Catalog
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = def.Embedder.TimeoutSecs
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.BaseURL == "" {
			cfg.Embedder.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = def.Embedder.BaseURL
	}
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = def.LLM.Type
	}
	if cfg.LLM.Type == "openai" {
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = def.LLM.TopP
	}
	if cfg.LLM.RepeatPenalty == 0 {
		cfg.LLM.RepeatPenalty = def.LLM.RepeatPenalty
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.LLM.GenerationTimeoutSecs == 0 {
		cfg.LLM.GenerationTimeoutSecs = def.LLM.GenerationTimeoutSecs
	}
	if cfg.Prompts.Active == "" {
		cfg.Prompts.Active = def.Prompts.Active
	}
	if cfg.Prompts.Templates == nil {
		cfg.Prompts.Templates = map[string]string{}
	}
	for name, tmpl := range def.Prompts.Templates {
		if _, ok := cfg.Prompts.Templates[name]; !ok {
			cfg.Prompts.Templates[name] = tmpl
		}
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = def.Data.Dir
	}
	if cfg.Data.Source == "" {
		cfg.Data.Source = filepath.Join(cfg.Data.Dir, "realistic_restaurant_reviews.csv")
	}
	if cfg.Data.Columns.Title == "" {
		cfg.Data.Columns.Title = def.Data.Columns.Title
	}
	if cfg.Data.Columns.Review == "" {
		cfg.Data.Columns.Review = def.Data.Columns.Review
	}
	if cfg.Data.Columns.Rating == "" {
		cfg.Data.Columns.Rating = def.Data.Columns.Rating
	}
	if cfg.Data.Columns.Date == "" {
		cfg.Data.Columns.Date = def.Data.Columns.Date
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = def.Retrieval.K
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = def.Retrieval.FetchK
	}
	if cfg.Retrieval.LambdaMult == 0 {
		cfg.Retrieval.LambdaMult = def.Retrieval.LambdaMult
	}
	if cfg.Retrieval.ContextBudget == 0 {
		cfg.Retrieval.ContextBudget = def.Retrieval.ContextBudget
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = def.VectorStore.Collection
	}
	if cfg.VectorStore.PersistDir == "" {
		cfg.VectorStore.PersistDir = filepath.Join(cfg.Data.Dir, "index")
	}
	if cfg.VectorStore.BatchSize == 0 {
		cfg.VectorStore.BatchSize = def.VectorStore.BatchSize
	}
	if cfg.VectorStore.ChunkSize == 0 {
		cfg.VectorStore.ChunkSize = def.VectorStore.ChunkSize
	}
	if cfg.VectorStore.ChunkOverlap == 0 {
		cfg.VectorStore.ChunkOverlap = def.VectorStore.ChunkOverlap
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
		cfg.VectorStore.Qdrant.TimeoutSecs = 15
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = def.Web.Addr
	}
	if cfg.Web.HistorySize == 0 {
		cfg.Web.HistorySize = def.Web.HistorySize
	}
	if cfg.Web.HistoryView == 0 {
		cfg.Web.HistoryView = def.Web.HistoryView
	}
	if cfg.Web.RatePerSec == 0 {
		cfg.Web.RatePerSec = def.Web.RatePerSec
	}
	if cfg.Web.Burst == 0 {
		cfg.Web.Burst = def.Web.Burst
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// applyEnvOverrides lets OLLAMA_HOST point both Ollama backends at another host.
func applyEnvOverrides(cfg *AppConfig) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		return
	}
	if cfg.Embedder.Type == "ollama" {
		cfg.Embedder.BaseURL = host
	}
	if cfg.LLM.Type == "ollama" {
		cfg.LLM.BaseURL = host
	}
}
