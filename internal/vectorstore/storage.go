// Package vectorstore defines the similarity index storage used by the indexer.
package vectorstore

import (
	"context"

	"wikirag/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	// Init prepares the store for vectors of the given dimension and drops
	// any previously stored segments.
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, segments []domain.Segment, vectors [][]float32) error
	// Search returns up to topK segments ordered by descending similarity;
	// equal scores keep segment position order.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Lister is implemented by stores that can enumerate their segments.
type Lister interface {
	Segments(ctx context.Context) ([]domain.Segment, error)
}
