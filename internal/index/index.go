// Package index builds the similarity index over the knowledge base, persists
// it, and answers nearest-segment queries against it.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"wikirag/internal/chunker"
	"wikirag/internal/domain"
	"wikirag/internal/knowledgebase"
	"wikirag/internal/summarizer"
	"wikirag/internal/textutil"
	"wikirag/internal/vectorstore"
)

// Defaults for the builder options.
const (
	DefaultTopK             = 4
	DefaultBatchSize        = 64
	DefaultSummarySentences = 3
	DefaultPersistPath      = "faiss_index"
)

// StoreOpener opens the vector store that lives under persistPath.
type StoreOpener func(ctx context.Context, persistPath string) (vectorstore.Storage, error)

// Options configures a Builder. Zero values use the defaults.
type Options struct {
	Chunker          *chunker.WindowChunker
	Summarizer       domain.Summarizer
	SummarySentences int
	TopK             int
	BatchSize        int
	// ReadText extracts the document text. Defaults to knowledgebase.ReadText.
	ReadText func(path string) (string, error)
	Logger   *slog.Logger
}

// Builder creates or reloads an Index.
type Builder struct {
	embedder         domain.Embedder
	open             StoreOpener
	chunker          *chunker.WindowChunker
	summarizer       domain.Summarizer
	summarySentences int
	topK             int
	batchSize        int
	readText         func(string) (string, error)
	logger           *slog.Logger
}

// NewBuilder returns a Builder that embeds with embedder and stores into the
// stores produced by open.
func NewBuilder(embedder domain.Embedder, open StoreOpener, opts Options) *Builder {
	b := &Builder{
		embedder:         embedder,
		open:             open,
		chunker:          opts.Chunker,
		summarizer:       opts.Summarizer,
		summarySentences: opts.SummarySentences,
		topK:             opts.TopK,
		batchSize:        opts.BatchSize,
		readText:         opts.ReadText,
		logger:           opts.Logger,
	}
	if b.chunker == nil {
		b.chunker = chunker.NewWindowChunker(chunker.DefaultWindow, chunker.DefaultOverlap)
	}
	if b.summarizer == nil {
		b.summarizer = summarizer.NewFrequencySummarizer()
	}
	if b.summarySentences <= 0 {
		b.summarySentences = DefaultSummarySentences
	}
	if b.topK <= 0 {
		b.topK = DefaultTopK
	}
	if b.batchSize <= 0 {
		b.batchSize = DefaultBatchSize
	}
	if b.readText == nil {
		b.readText = knowledgebase.ReadText
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// BuildOrLoad returns the persisted index at persistPath when it is complete
// and was built with the same embedder and window; otherwise it indexes the
// document at documentPath and persists the result.
func (b *Builder) BuildOrLoad(ctx context.Context, documentPath, persistPath string) (*Index, error) {
	ix, err := b.Load(ctx, persistPath)
	if err == nil {
		return ix, nil
	}
	if !errors.Is(err, errNoManifest) {
		b.logger.Info("persisted index unusable, rebuilding", "path", persistPath, "reason", err)
	}
	return b.Build(ctx, documentPath, persistPath)
}

// Load opens the persisted index without reading the document.
func (b *Builder) Load(ctx context.Context, persistPath string) (*Index, error) {
	m, err := readManifest(persistPath)
	if err != nil {
		return nil, err
	}
	if m.Embedder != b.embedder.Name() {
		return nil, fmt.Errorf("index built with embedder %q, configured %q", m.Embedder, b.embedder.Name())
	}
	if m.Window != b.chunker.Window() || m.Overlap != b.chunker.Overlap() {
		return nil, fmt.Errorf("index built with window %d/%d", m.Window, m.Overlap)
	}
	if se, ok := b.embedder.(domain.StatefulEmbedder); ok {
		data, err := os.ReadFile(filepath.Join(persistPath, StateFile))
		if err != nil {
			return nil, fmt.Errorf("reading embedder state: %w", err)
		}
		if err := se.UnmarshalState(data); err != nil {
			return nil, err
		}
	}

	store, err := b.open(ctx, persistPath)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	n, err := store.Count(ctx)
	if err != nil || n != m.Segments {
		store.Close()
		if err == nil {
			err = fmt.Errorf("store holds %d segments, manifest %d", n, m.Segments)
		}
		return nil, err
	}
	b.logger.Info("loaded persisted index", "path", persistPath, "segments", n)
	return b.newIndex(store, m), nil
}

// Build indexes documentPath from scratch, replacing anything stored under
// persistPath. A missing document yields domain.ErrMissingArtifact.
func (b *Builder) Build(ctx context.Context, documentPath, persistPath string) (*Index, error) {
	text, err := b.readText(documentPath)
	if err != nil {
		return nil, err
	}
	segments := b.chunker.Chunk(text)
	if len(segments) == 0 {
		return nil, fmt.Errorf("knowledge base %s has no extractable text", documentPath)
	}
	b.logger.Info("indexing knowledge base", "document", documentPath, "segments", len(segments))

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	if err := b.embedder.Prepare(ctx, texts); err != nil {
		return nil, &domain.ExternalServiceError{Op: "embed", Err: err}
	}
	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(persistPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	// A half-written index must never look valid.
	if err := b.Invalidate(persistPath); err != nil {
		return nil, err
	}
	store, err := b.open(ctx, persistPath)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	dim := len(vectors[0])
	if err := store.Init(ctx, dim); err != nil {
		store.Close()
		return nil, fmt.Errorf("initialising vector store: %w", err)
	}
	if err := store.Upsert(ctx, segments, vectors); err != nil {
		store.Close()
		return nil, fmt.Errorf("storing segments: %w", err)
	}

	summary, err := b.summarizer.Summarize(text, b.summarySentences)
	if err != nil {
		b.logger.Warn("summary failed", "error", err)
	}
	m := Manifest{
		Embedder:  b.embedder.Name(),
		Dimension: dim,
		Segments:  len(segments),
		Window:    b.chunker.Window(),
		Overlap:   b.chunker.Overlap(),
		Document:  documentPath,
		Summary:   summary,
		BuiltAt:   time.Now().UTC(),
	}
	if err := b.persist(persistPath, m); err != nil {
		store.Close()
		return nil, err
	}
	return b.newIndex(store, m), nil
}

// Invalidate removes the manifest so the next BuildOrLoad rebuilds.
func (b *Builder) Invalidate(persistPath string) error {
	err := os.Remove(filepath.Join(persistPath, ManifestFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalidating index: %w", err)
	}
	return nil
}

func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch, err := b.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, &domain.ExternalServiceError{Op: "embed", Err: err}
		}
		vectors = append(vectors, batch...)
		b.logger.Debug("embedded batch", "done", end, "total", len(texts))
	}
	if len(vectors) != len(texts) {
		return nil, &domain.ExternalServiceError{
			Op:  "embed",
			Err: fmt.Errorf("got %d vectors for %d segments", len(vectors), len(texts)),
		}
	}
	return vectors, nil
}

func (b *Builder) persist(persistPath string, m Manifest) error {
	if se, ok := b.embedder.(domain.StatefulEmbedder); ok {
		data, err := se.MarshalState()
		if err != nil {
			return fmt.Errorf("saving embedder state: %w", err)
		}
		if err := os.WriteFile(filepath.Join(persistPath, StateFile), data, 0o644); err != nil {
			return fmt.Errorf("saving embedder state: %w", err)
		}
	}
	if err := writeManifest(persistPath, m); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

func (b *Builder) newIndex(store vectorstore.Storage, m Manifest) *Index {
	return &Index{
		store:    store,
		embedder: b.embedder,
		manifest: m,
		topK:     b.topK,
		logger:   b.logger,
	}
}

// Index is a loaded similarity index.
type Index struct {
	store    vectorstore.Storage
	embedder domain.Embedder
	manifest Manifest
	topK     int
	logger   *slog.Logger
}

// Retrieve returns the default number of segments most similar to query.
func (ix *Index) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return ix.Search(ctx, query, ix.topK)
}

// Search returns up to topK segments by cosine similarity, falling back to
// lexical overlap when the query has no usable embedding.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = ix.topK
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "embed", Err: err}
	}
	if isZero(vec) {
		return ix.lexicalSearch(ctx, query, topK)
	}
	res, err := ix.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return ix.lexicalSearch(ctx, query, topK)
}

// lexicalSearch ranks segments by Ochiai word overlap with query. Stores that
// cannot list their segments return no results.
func (ix *Index) lexicalSearch(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	lister, ok := ix.store.(vectorstore.Lister)
	if !ok {
		return nil, nil
	}
	segments, err := lister.Segments(ctx)
	if err != nil {
		return nil, err
	}
	ix.logger.Debug("using lexical fallback", "query", query)

	qset := textutil.TokenSet(query)
	results := make([]domain.SearchResult, 0, len(segments))
	for _, seg := range segments {
		if score := textutil.Ochiai(qset, seg.Text); score > 0 {
			results = append(results, domain.SearchResult{Segment: seg, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Segment.Position < results[j].Segment.Position
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Len returns the number of indexed segments.
func (ix *Index) Len() int { return ix.manifest.Segments }

// Summary returns the knowledge-base summary recorded at build time.
func (ix *Index) Summary() string { return ix.manifest.Summary }

// Manifest returns the metadata of the index.
func (ix *Index) Manifest() Manifest { return ix.manifest }

// Close releases the underlying store.
func (ix *Index) Close() error { return ix.store.Close() }

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
