// Package app assembles the configured components into a session.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"wikirag/internal/chunker"
	"wikirag/internal/config"
	"wikirag/internal/domain"
	"wikirag/internal/embedding"
	"wikirag/internal/embedding/cache"
	"wikirag/internal/embedding/openai"
	"wikirag/internal/embedding/tfidf"
	"wikirag/internal/index"
	llmopenai "wikirag/internal/llm/openai"
	"wikirag/internal/scraper"
	"wikirag/internal/service"
	"wikirag/internal/session"
	"wikirag/internal/summarizer"
	"wikirag/internal/vectorstore"
	"wikirag/internal/vectorstore/memory"
	"wikirag/internal/vectorstore/qdrant"
	"wikirag/internal/vectorstore/sqlite"
)

// NewSession builds an Unconfigured session from cfg.
func NewSession(cfg *config.AppConfig, logger *slog.Logger) *session.Session {
	return session.New(session.Config{
		Sources:      cfg.Sources,
		DocumentPath: cfg.KnowledgeBase.Path,
		PersistPath:  cfg.Index.Path,
	}, NewScraper(cfg, logger), NewFactory(cfg, logger), logger)
}

// NewScraper builds the page scraper.
func NewScraper(cfg *config.AppConfig, logger *slog.Logger) *scraper.Scraper {
	return scraper.New(scraper.Config{
		Timeout:           time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
		UserAgent:         cfg.Scraper.UserAgent,
		Concurrency:       cfg.Scraper.Concurrency,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
	}, logger)
}

// NewFactory returns a session.Factory creating the credential-bound
// embedder, index builder and chat chain described by cfg.
func NewFactory(cfg *config.AppConfig, logger *slog.Logger) session.Factory {
	return func(ctx context.Context, credential string) (*session.Backends, error) {
		emb, closeEmb, err := NewEmbedder(ctx, cfg, credential, logger)
		if err != nil {
			return nil, err
		}
		model, err := llmopenai.NewChatModel(llmopenai.Config{
			APIKey:      credential,
			BaseURL:     cfg.Chat.BaseURL,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			Timeout:     time.Duration(cfg.Chat.TimeoutSecs) * time.Second,
			Retry:       cfg.RetryPolicy(),
		})
		if err != nil {
			closeEmb()
			return nil, err
		}
		open, err := NewStoreOpener(cfg)
		if err != nil {
			closeEmb()
			return nil, err
		}
		builder := index.NewBuilder(emb, open, index.Options{
			Chunker:          chunker.NewWindowChunker(cfg.Chunker.Window, cfg.Chunker.Overlap),
			Summarizer:       NewSummarizer(cfg),
			SummarySentences: cfg.Summarizer.MaxSentences,
			TopK:             cfg.Index.TopK,
			BatchSize:        cfg.Index.BatchSize,
			Logger:           logger,
		})
		chainOpts := service.Options{
			SystemPrompt: cfg.Chat.SystemPrompt,
			MinGrounding: cfg.Chat.MinGrounding,
		}
		return &session.Backends{
			Indexer: builder,
			NewChain: func(r service.Retriever) session.Answerer {
				return service.NewChain(r, model, chainOpts, logger)
			},
			Close: func() error {
				closeEmb()
				return nil
			},
		}, nil
	}
}

// NewEmbedder builds the configured embedder, wrapped in the Redis cache when
// one is configured. The returned func releases the cache connection.
func NewEmbedder(ctx context.Context, cfg *config.AppConfig, credential string, logger *slog.Logger) (embedding.Embedder, func(), error) {
	noop := func() {}
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKey:    credential,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize: oc.BatchSize,
			Retry:     cfg.RetryPolicy(),
		})
		if err != nil {
			return nil, noop, err
		}
		emb = client
	default:
		return nil, noop, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	if cfg.Cache.Type != "redis" || cfg.Cache.Redis == nil {
		return emb, noop, nil
	}
	if _, stateful := emb.(domain.StatefulEmbedder); stateful {
		// Vectors of a stateful embedder change with every rebuild.
		logger.Warn("embedding cache ignored for stateful embedder", "embedder", emb.Name())
		return emb, noop, nil
	}
	client, err := cache.Dial(ctx, cfg.Cache.Redis.URL)
	if err != nil {
		return nil, noop, err
	}
	ttl := time.Duration(cfg.Cache.Redis.TTLSecs) * time.Second
	return cache.New(emb, client, ttl, logger), closeClient(client, logger), nil
}

func closeClient(client *redis.Client, logger *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}
}

// NewStoreOpener returns the opener of the configured vector store.
func NewStoreOpener(cfg *config.AppConfig) (index.StoreOpener, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		return func(_ context.Context, dir string) (vectorstore.Storage, error) {
			return sqlite.Open(dir)
		}, nil
	case "memory":
		return func(context.Context, string) (vectorstore.Storage, error) {
			return memory.NewStorage(), nil
		}, nil
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		if qc == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return func(context.Context, string) (vectorstore.Storage, error) {
			return qdrant.NewStorage(qdrant.Config{
				Addr:       qc.Addr,
				APIKey:     qc.APIKey,
				Collection: qc.Collection,
				Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// NewSummarizer returns the configured summarizer. Frequency ranking is the
// only kind; config validation rejects others.
func NewSummarizer(*config.AppConfig) domain.Summarizer {
	return summarizer.NewFrequencySummarizer()
}
