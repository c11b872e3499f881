// Package embedding contains the text embedders used to index the knowledge base.
package embedding

import "wikirag/internal/domain"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder = domain.Embedder
