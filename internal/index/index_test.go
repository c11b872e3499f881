package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/chunker"
	"wikirag/internal/domain"
	"wikirag/internal/embedding/tfidf"
	"wikirag/internal/knowledgebase"
	"wikirag/internal/vectorstore"
	"wikirag/internal/vectorstore/memory"
	"wikirag/internal/vectorstore/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(_ context.Context, dir string) (vectorstore.Storage, error) {
	return sqlite.Open(dir)
}

// textFiles serves document text from memory.
type textFiles map[string]string

func (f textFiles) read(path string) (string, error) {
	text, ok := f[path]
	if !ok {
		return "", domain.ErrMissingArtifact
	}
	return text, nil
}

func corpus() string {
	topics := []string{
		"Photosynthesis converts sunlight into chemical energy inside chlorophyll of green plants. ",
		"Volcanoes erupt molten lava and ash when magma pressure builds beneath the crust. ",
		"Transformers use attention layers so language models can predict the next token. ",
	}
	var b strings.Builder
	for _, t := range topics {
		b.WriteString(strings.Repeat(t, 8))
	}
	return b.String()
}

func newTestBuilder(files textFiles, open StoreOpener) *Builder {
	return NewBuilder(tfidf.NewEmbedder(), open, Options{ReadText: files.read, Logger: quietLogger()})
}

func TestBuild_SegmentCountMatchesWindow(t *testing.T) {
	ctx := context.Background()
	text := corpus()
	b := newTestBuilder(textFiles{"kb.pdf": text}, openSQLite)

	ix, err := b.BuildOrLoad(ctx, "kb.pdf", t.TempDir())
	require.NoError(t, err)
	defer ix.Close()

	expected := chunker.NewWindowChunker(500, 50).ExpectedCount(len([]rune(text)))
	assert.Equal(t, expected, ix.Len())
	assert.NotEmpty(t, ix.Summary())
}

func TestRetrieve_RanksRelevantSegmentFirst(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(textFiles{"kb.pdf": corpus()}, openSQLite)
	ix, err := b.BuildOrLoad(ctx, "kb.pdf", t.TempDir())
	require.NoError(t, err)
	defer ix.Close()

	results, err := ix.Retrieve(ctx, "How do volcanoes erupt lava?")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), DefaultTopK)
	assert.Contains(t, results[0].Segment.Text, "lava")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestBuildOrLoad_ReloadsWithoutDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := textFiles{"kb.pdf": corpus()}

	first, err := newTestBuilder(files, openSQLite).BuildOrLoad(ctx, "kb.pdf", dir)
	require.NoError(t, err)
	want, err := first.Retrieve(ctx, "chlorophyll sunlight")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	assert.FileExists(t, filepath.Join(dir, ManifestFile))
	assert.FileExists(t, filepath.Join(dir, StateFile))

	// The document is gone; a fresh builder must still load the index.
	second, err := newTestBuilder(textFiles{}, openSQLite).BuildOrLoad(ctx, "kb.pdf", dir)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Len(), second.Len())
	assert.Equal(t, first.Summary(), second.Summary())
	got, err := second.Retrieve(ctx, "chlorophyll sunlight")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Segment, got[i].Segment)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
	}
}

func TestBuildOrLoad_MissingDocument(t *testing.T) {
	_, err := newTestBuilder(textFiles{}, openSQLite).BuildOrLoad(context.Background(), "kb.pdf", t.TempDir())
	assert.ErrorIs(t, err, domain.ErrMissingArtifact)
}

func TestInvalidate_ForcesRebuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := newTestBuilder(textFiles{"kb.pdf": corpus()}, openSQLite)
	ix, err := b.BuildOrLoad(ctx, "kb.pdf", dir)
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	require.NoError(t, b.Invalidate(dir))
	require.NoError(t, b.Invalidate(dir))
	assert.NoFileExists(t, filepath.Join(dir, ManifestFile))

	_, err = newTestBuilder(textFiles{}, openSQLite).BuildOrLoad(ctx, "kb.pdf", dir)
	assert.ErrorIs(t, err, domain.ErrMissingArtifact)
}

func TestBuildOrLoad_RebuildsWhenStoreIsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	openMemory := func(context.Context, string) (vectorstore.Storage, error) {
		return memory.NewStorage(), nil
	}
	files := textFiles{"kb.pdf": corpus()}

	first, err := newTestBuilder(files, openMemory).BuildOrLoad(ctx, "kb.pdf", dir)
	require.NoError(t, err)

	// A memory store does not survive; the manifest count no longer matches.
	delete(files, "kb.pdf")
	_, err = newTestBuilder(files, openMemory).BuildOrLoad(ctx, "kb.pdf", dir)
	assert.ErrorIs(t, err, domain.ErrMissingArtifact)
	assert.Positive(t, first.Len())
}

func TestBuild_EmptyDocument(t *testing.T) {
	_, err := newTestBuilder(textFiles{"kb.pdf": ""}, openSQLite).Build(context.Background(), "kb.pdf", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractable text")
}

// zeroEmbedder stores every segment as the same vector and embeds every
// query as the zero vector.
type zeroEmbedder struct{}

func (zeroEmbedder) Name() string { return "zero" }

func (zeroEmbedder) Prepare(context.Context, []string) error { return nil }

func (zeroEmbedder) Dimension() int { return 2 }

func (zeroEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0, 0}, nil
}

func (zeroEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestSearch_LexicalFallback(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(zeroEmbedder{}, openSQLite, Options{
		ReadText: textFiles{"kb.pdf": corpus()}.read,
		Logger:   quietLogger(),
	})
	ix, err := b.Build(ctx, "kb.pdf", t.TempDir())
	require.NoError(t, err)
	defer ix.Close()

	results, err := ix.Search(ctx, "attention transformers", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Contains(t, results[0].Segment.Text, "attention")

	none, err := ix.Search(ctx, "zzz qqq", 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type failingEmbedder struct{ zeroEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("429 Too Many Requests")
}

func TestBuild_EmbeddingFailureIsProcessingError(t *testing.T) {
	b := NewBuilder(failingEmbedder{}, openSQLite, Options{
		ReadText: textFiles{"kb.pdf": corpus()}.read,
		Logger:   quietLogger(),
	})
	_, err := b.Build(context.Background(), "kb.pdf", t.TempDir())
	assert.ErrorIs(t, err, domain.ErrProcessingFailed)
}

func TestBuildOrLoad_FromPDF(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	pdfPath := filepath.Join(root, "DOCS", "scraped_data.pdf")
	scraped := domain.ScrapedText{
		{Source: domain.Source{Title: "AGI"}, Text: strings.Repeat("Artificial general intelligence matches human cognition.\n", 30)},
		{Source: domain.Source{Title: "RAG"}, Text: strings.Repeat("Retrieval augmented generation grounds answers in documents.\n", 30)},
	}
	require.NoError(t, knowledgebase.Write(pdfPath, scraped))

	b := NewBuilder(tfidf.NewEmbedder(), openSQLite, Options{Logger: quietLogger()})
	ix, err := b.BuildOrLoad(ctx, pdfPath, filepath.Join(root, DefaultPersistPath))
	require.NoError(t, err)
	defer ix.Close()

	assert.Greater(t, ix.Len(), 1)
	_, err = os.Stat(filepath.Join(root, DefaultPersistPath, sqlite.FileName))
	assert.NoError(t, err)

	results, err := ix.Retrieve(ctx, "retrieval generation documents")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, strings.ToLower(results[0].Segment.Text), "retrieval")
}
