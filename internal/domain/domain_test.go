package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AppendAndTurns(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, 0, m.Len())

	m.Append("What is AGI?", "A hypothetical agent.")
	m.Append("Who coined it?", "Unknown.")

	turns := m.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "What is AGI?", turns[0].Question)
	assert.Equal(t, "Unknown.", turns[1].Answer)

	// Turns returns a copy.
	turns[0].Question = "changed"
	assert.Equal(t, "What is AGI?", m.Turns()[0].Question)
}

func TestScrapedText_Get(t *testing.T) {
	st := ScrapedText{
		{Source: Source{Title: "AGI", URL: "u1"}, Text: "agi text"},
		{Source: Source{Title: "RAG", URL: "u2"}, Text: "rag text"},
	}
	text, ok := st.Get("RAG")
	assert.True(t, ok)
	assert.Equal(t, "rag text", text)

	_, ok = st.Get("LLM")
	assert.False(t, ok)
}

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources()
	require.Len(t, sources, 4)
	assert.Equal(t, "Generative AI", sources[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Large_language_model", sources[3].URL)
}

func TestSourceFetchError_Sentinel(t *testing.T) {
	cause := errors.New("404 Not Found")
	err := &SourceFetchError{URL: "https://example.org/x", Err: cause}
	assert.Equal(t, "[ERROR scraping https://example.org/x]: 404 Not Found", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestExternalServiceError_IsProcessingFailed(t *testing.T) {
	cause := errors.New("401 Unauthorized")
	var err error = &ExternalServiceError{Op: "chat", Err: cause}

	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "processing failed")
	assert.Contains(t, err.Error(), "401 Unauthorized")
	assert.NotErrorIs(t, err, ErrMissingArtifact)
}
