package knowledgebase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func sample() domain.ScrapedText {
	return domain.ScrapedText{
		{Source: domain.Source{Title: "AGI", URL: "https://en.wikipedia.org/wiki/AGI"}, Text: "AGI is general.\nIt is hypothetical."},
		{Source: domain.Source{Title: "RAG", URL: "https://en.wikipedia.org/wiki/RAG"}, Text: "[ERROR scraping https://en.wikipedia.org/wiki/RAG]: timeout"},
	}
}

func TestLines_Layout(t *testing.T) {
	lines := Lines(sample())
	expected := []string{
		"## AGI ##", "AGI is general.", "It is hypothetical.", "", "",
		"## RAG ##", "[ERROR scraping https://en.wikipedia.org/wiki/RAG]: timeout", "", "",
	}
	assert.Equal(t, expected, lines)
}

func TestWrite_CreatesDirectoryAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DOCS", "scraped_data.pdf")
	require.NoError(t, Write(path, sample()))
	assert.True(t, Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	require.NoError(t, Write(path, domain.ScrapedText{{Source: domain.Source{Title: "Only"}, Text: "x"}}))
	assert.True(t, Exists(path))
	assert.False(t, Exists(filepath.Dir(path)))
}

func TestWrite_PaginatesLongText(t *testing.T) {
	long := strings.Repeat("A line of scraped text that is long enough to wrap across the page width.\n", 400)
	path := filepath.Join(t.TempDir(), "kb.pdf")
	require.NoError(t, Write(path, domain.ScrapedText{{Source: domain.Source{Title: "Long"}, Text: long}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Greater(t, strings.Count(string(data), "/Type /Page\n"), 1)
}

func TestReadText_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.pdf")
	require.NoError(t, Write(path, sample()))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "## AGI ##\nAGI is general.\nIt is hypothetical.")
	assert.Contains(t, text, "hypothetical.\n## RAG ##")
	assert.Less(t, strings.Index(text, "## AGI ##"), strings.Index(text, "## RAG ##"))
}

func TestReadText_WrappedLinesKeepWordBoundaries(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	long := strings.TrimSpace(strings.Repeat(strings.Join(words, " ")+" ", 40))
	path := filepath.Join(t.TempDir(), "kb.pdf")
	require.NoError(t, Write(path, domain.ScrapedText{
		{Source: domain.Source{Title: "AGI"}, Text: long + "\nsecond paragraph"},
	}))

	text, err := ReadText(path)
	require.NoError(t, err)
	require.Greater(t, strings.Count(text, "\n"), 3, "long line should wrap onto several rows")

	lines := strings.Split(text, "\n")
	assert.Equal(t, "## AGI ##", lines[0])
	assert.Equal(t, "second paragraph", lines[len(lines)-1])

	body := strings.Fields(strings.Join(lines[1:len(lines)-1], "\n"))
	assert.Len(t, body, 200)
	for _, w := range body {
		assert.Contains(t, words, w)
	}
}

func TestReadText_Windows1252Punctuation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.pdf")
	require.NoError(t, Write(path, domain.ScrapedText{
		{Source: domain.Source{Title: "AI"}, Text: "It’s a café."},
	}))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "## AI ##\nIt’s a café.", text)
}

func TestReadText_Missing(t *testing.T) {
	_, err := ReadText(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.ErrorIs(t, err, domain.ErrMissingArtifact)
}

func TestHeading(t *testing.T) {
	assert.Equal(t, "## LLM ##", Heading("LLM"))
}
