// Package service answers questions against the indexed knowledge base.
// It retrieves similar segments, renders them with the conversation history
// into a prompt, and asks the chat model for a grounded answer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"wikirag/internal/domain"
	"wikirag/internal/textutil"
)

// Retriever returns the segments most relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error)
}

// DefaultSystemPrompt instructs the model to stay within the retrieved context.
var DefaultSystemPrompt = `You are a helpful assistant answering questions about a small set of documents.
Answer the question using ONLY the provided context and the chat history.
If the context does not contain the answer, reply exactly:
` + domain.RefusalAnswer + `
Do not use outside knowledge.`

// Options configures a Chain.
type Options struct {
	SystemPrompt string
	// MinGrounding is the minimum share of the answer's content words that must
	// occur in the retrieved context. Zero disables the check.
	MinGrounding float64
}

// Chain is the conversational retrieval chain.
type Chain struct {
	retriever Retriever
	model     domain.ChatModel
	opts      Options
	logger    *slog.Logger
}

// NewChain creates a Chain. A nil logger uses slog.Default().
func NewChain(retriever Retriever, model domain.ChatModel, opts Options, logger *slog.Logger) *Chain {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{retriever: retriever, model: model, opts: opts, logger: logger}
}

// Answer answers question using the retrieved context and the turns already in
// memory. The turn is appended to memory only when the answer succeeds.
func (c *Chain) Answer(ctx context.Context, question string, memory *domain.Memory) (string, error) {
	var history []domain.Turn
	if memory != nil {
		history = memory.Turns()
	}

	results, err := c.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", asServiceError("retrieve", err)
	}
	c.logger.Debug("retrieved context", "segments", len(results), "history", len(history))

	messages := RenderPrompt(c.opts.SystemPrompt, question, history, results)
	answer, err := c.model.Complete(ctx, messages)
	if err != nil {
		return "", asServiceError("chat", err)
	}

	if c.opts.MinGrounding > 0 && answer != domain.RefusalAnswer {
		if g := Grounding(answer, results); g < c.opts.MinGrounding {
			c.logger.Info("answer not grounded in context, refusing", "grounding", g, "threshold", c.opts.MinGrounding)
			answer = domain.RefusalAnswer
		}
	}

	if memory != nil {
		memory.Append(question, answer)
	}
	return answer, nil
}

// RenderPrompt builds the system and user messages for one question.
func RenderPrompt(system, question string, history []domain.Turn, results []domain.SearchResult) []domain.ChatMessage {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Chat history:\n")
		b.WriteString(FormatHistory(history))
		b.WriteString("\n\n")
	}
	b.WriteString("Context:\n")
	b.WriteString(FormatContext(results))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	return []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}

// FormatHistory serializes turns as alternating Human/Assistant lines.
func FormatHistory(history []domain.Turn) string {
	lines := make([]string, 0, 2*len(history))
	for _, t := range history {
		lines = append(lines, "Human: "+t.Question, "Assistant: "+t.Answer)
	}
	return strings.Join(lines, "\n")
}

// FormatContext joins the retrieved segment texts with blank lines.
func FormatContext(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = strings.TrimSpace(r.Segment.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Grounding returns the share of the answer's content words found in the
// retrieved segments. Answers without content words count as grounded.
func Grounding(answer string, results []domain.SearchResult) float64 {
	words := textutil.ContentWords(answer)
	if len(words) == 0 {
		return 1
	}
	ctxSet := textutil.TokenSet(FormatContext(results))
	hits := 0
	for _, w := range words {
		if _, ok := ctxSet[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

func asServiceError(op string, err error) error {
	var se *domain.ExternalServiceError
	if errors.As(err, &se) {
		return err
	}
	return &domain.ExternalServiceError{Op: op, Err: err}
}
