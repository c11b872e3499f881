package domain

import "context"

// Segment is a bounded slice of the knowledge base used for indexing.
type Segment struct {
	ID       string
	Position int
	Text     string
}

// SearchResult represents a matching segment with a relevance score.
type SearchResult struct {
	Segment Segment
	Score   float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StatefulEmbedder is an Embedder whose vectors depend on state learned in
// Prepare. The state is persisted alongside the index so that queries against
// a reloaded index are embedded in the same space.
type StatefulEmbedder interface {
	Embedder
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Chunker splits text into segments suitable for retrieval indexing.
type Chunker interface {
	Chunk(text string) []Segment
}

// ChatMessage is a single message sent to a chat model.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role    string
	Content string
}

// ChatModel produces a completion for a conversation.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
