package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"wikirag/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	segments  []domain.Segment
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.segments = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, segments []domain.Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.segments = append(s.segments, segments...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 4
	}
	qn := norm(vector)
	idxs := make([]int, len(s.vectors))
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		idxs[i] = i
		scores[i] = cosine(s.vectors[i], vector, qn)
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		sa, sb := scores[idxs[a]], scores[idxs[b]]
		if sa != sb {
			return sa > sb
		}
		return s.segments[idxs[a]].Position < s.segments[idxs[b]].Position
	})
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Segment: s.segments[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments), nil
}

// Segments returns the stored segments in insertion order.
func (s *Storage) Segments(context.Context) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Segment, len(s.segments))
	copy(out, s.segments)
	return out, nil
}

func (s *Storage) Close() error { return nil }

func cosine(a, b []float32, bn float64) float64 {
	if bn == 0 {
		return 0
	}
	an := norm(a)
	if an == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum / (an * bn)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
