// Package cache wraps an Embedder with a Redis-backed vector cache so that
// rebuilding the index from an unchanged knowledge base does not pay for the
// same embeddings twice.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"wikirag/internal/domain"
)

var _ domain.Embedder = (*Embedder)(nil)

const keyPrefix = "wikirag:emb:"

// Embedder serves vectors from Redis and delegates misses to the wrapped embedder.
type Embedder struct {
	inner  domain.Embedder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps inner. A zero ttl keeps entries until evicted.
func New(inner domain.Embedder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (e *Embedder) Name() string { return e.inner.Name() }

func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	return e.inner.Prepare(ctx, corpus)
}

func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch looks every text up in Redis and embeds only the misses.
// Cache failures are logged and treated as misses.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.key(t)
	}

	var missIdx []int
	var missTexts []string
	cached, err := e.client.MGet(ctx, keys...).Result()
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "err", err)
		cached = make([]any, len(texts))
	}
	for i, v := range cached {
		if s, ok := v.(string); ok {
			if vec, err := decode([]byte(s)); err == nil {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	e.logger.Debug("embedding cache", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", e.inner.Name(), len(fresh), len(missTexts))
	}
	pipe := e.client.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encode(fresh[j]), e.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.logger.Warn("embedding cache store failed", "err", err)
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	h := sha1.Sum([]byte(text))
	return keyPrefix + e.inner.Name() + ":" + hex.EncodeToString(h[:])
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.New("corrupt cached vector")
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// Dial connects to Redis at url (redis://host:port/db) and pings it.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
