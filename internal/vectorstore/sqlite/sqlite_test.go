package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, FileName))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsert_RequiresInit(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	err = s.Upsert(context.Background(), []domain.Segment{{ID: "a"}}, [][]float32{{1}})
	assert.Error(t, err)
}

func TestPersistAndReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 2))
	segs := []domain.Segment{
		{ID: "seg-0", Position: 0, Text: "about agi"},
		{ID: "seg-1", Position: 1, Text: "about rag"},
		{ID: "seg-2", Position: 2, Text: "about llm"},
	}
	vecs := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	require.NoError(t, s.Upsert(ctx, segs, vecs))
	before, err := s.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	after, err := reopened.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "about agi", after[0].Segment.Text)

	all, err := reopened.Segments(ctx)
	require.NoError(t, err)
	assert.Equal(t, segs, all)
}

func TestInit_ClearsPreviousSegments(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Segment{{ID: "a", Position: 0, Text: "a"}}, [][]float32{{1}}))
	_, err = s.Search(ctx, []float32{1}, 1)
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx, 1))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := s.Search(ctx, []float32{1}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestFloat32Blob(t *testing.T) {
	in := []float32{0, -1.25, 3.5e-8}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
}
