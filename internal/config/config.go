package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"wikirag/internal/domain"
	"wikirag/internal/retry"
)

// DefaultAPIKeyEnv is the environment variable holding the OpenAI API key.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// KnowledgeBaseConfig locates the generated PDF.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// ScraperConfig configures page acquisition.
type ScraperConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ChunkerConfig configures how the knowledge base is split into segments.
type ChunkerConfig struct {
	Window  int `yaml:"window"`
	Overlap int `yaml:"overlap"`
}

// IndexConfig configures the persisted index.
type IndexConfig struct {
	Path      string `yaml:"path"`
	TopK      int    `yaml:"top_k"`
	BatchSize int    `yaml:"batch_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChatConfig configures the chat model and answer policy.
type ChatConfig struct {
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
	MinGrounding float64 `yaml:"min_grounding"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr        string `yaml:"addr"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CacheConfig configures the optional embedding cache.
type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains connection details for the Redis embedding cache.
type RedisConfig struct {
	URL     string `yaml:"url"`
	TTLSecs int    `yaml:"ttl_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// RetryConfig bounds retries of external calls. MaxAttempts 1 disables them.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialWaitMillis int `yaml:"initial_wait_ms"`
	MaxWaitMillis     int `yaml:"max_wait_ms"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CredentialConfig names where the API key is read from.
type CredentialConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Sources       []domain.Source     `yaml:"sources"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Scraper       ScraperConfig       `yaml:"scraper"`
	Chunker       ChunkerConfig       `yaml:"chunker"`
	Index         IndexConfig         `yaml:"index"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	Chat          ChatConfig          `yaml:"chat"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Cache         CacheConfig         `yaml:"cache"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Retry         RetryConfig         `yaml:"retry"`
	Log           LogConfig           `yaml:"log"`
	Credential    CredentialConfig    `yaml:"credential"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/wikirag/config.yaml.
// If neither exists, it writes defaults to ~/.config/wikirag/config.yaml and returns them.
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
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
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

// Validate rejects unknown component types.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "openai", "tfidf":
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "sqlite", "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Addr == "" {
			return errors.New("qdrant vector store requires vector_store.qdrant.addr")
		}
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	switch c.Cache.Type {
	case "none":
	case "redis":
		if c.Cache.Redis == nil || c.Cache.Redis.URL == "" {
			return errors.New("redis cache requires cache.redis.url")
		}
	default:
		return fmt.Errorf("unknown cache: %q", c.Cache.Type)
	}
	if c.Summarizer.Type != "frequency" {
		return fmt.Errorf("unknown summarizer: %q", c.Summarizer.Type)
	}
	if c.Chunker.Overlap >= c.Chunker.Window {
		return fmt.Errorf("chunker overlap %d must be smaller than window %d", c.Chunker.Overlap, c.Chunker.Window)
	}
	return nil
}

// RetryPolicy converts the retry section into a retry.Policy.
func (c *AppConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		InitialWait: time.Duration(c.Retry.InitialWaitMillis) * time.Millisecond,
		MaxWait:     time.Duration(c.Retry.MaxWaitMillis) * time.Millisecond,
	}
}

// APIKey returns the credential from the configured environment variable.
func (c *AppConfig) APIKey() string {
	return os.Getenv(c.Credential.APIKeyEnv)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wikirag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
		Cache:       CacheConfig{Type: "none"},
		Summarizer:  SummarizerConfig{Type: "frequency"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if len(cfg.Sources) == 0 {
		cfg.Sources = domain.DefaultSources()
	}
	if cfg.KnowledgeBase.Path == "" {
		cfg.KnowledgeBase.Path = "DOCS/scraped_data.pdf"
	}
	if cfg.Scraper.TimeoutSecs == 0 {
		cfg.Scraper.TimeoutSecs = 10
	}
	if cfg.Scraper.Concurrency == 0 {
		cfg.Scraper.Concurrency = 1
	}
	if cfg.Chunker.Window == 0 {
		cfg.Chunker.Window = 500
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "faiss_index"
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 4
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 64
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-3.5-turbo"
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 60
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "wikirag"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "none"
	}
	if cfg.Cache.Redis != nil && cfg.Cache.Redis.TTLSecs == 0 {
		cfg.Cache.Redis.TTLSecs = 7 * 24 * 3600
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Log.Level == "" {
		// Keeps the chat transcript free of progress logs.
		cfg.Log.Level = "warn"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Credential.APIKeyEnv == "" {
		cfg.Credential.APIKeyEnv = DefaultAPIKeyEnv
	}
}
