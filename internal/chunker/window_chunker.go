package chunker

import (
	"strconv"

	"wikirag/internal/domain"
)

// Default window parameters, in characters.
const (
	DefaultWindow  = 500
	DefaultOverlap = 50
)

// WindowChunker splits text into fixed-size character windows where
// consecutive windows share Overlap characters.
type WindowChunker struct {
	window  int
	overlap int
}

func NewWindowChunker(window, overlap int) *WindowChunker {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window / 10
	}
	return &WindowChunker{window: window, overlap: overlap}
}

// Window returns the window length in characters.
func (c *WindowChunker) Window() int { return c.window }

// Overlap returns the number of characters shared by consecutive windows.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk slides the window over text with stride window-overlap. The last
// window ends exactly at the end of the text.
func (c *WindowChunker) Chunk(text string) []domain.Segment {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	stride := c.window - c.overlap
	segments := make([]domain.Segment, 0, n/stride+1)
	for start, idx := 0, 0; start < n; start, idx = start+stride, idx+1 {
		end := start + c.window
		if end > n {
			end = n
		}
		segments = append(segments, domain.Segment{
			ID:       "seg-" + strconv.Itoa(idx),
			Position: idx,
			Text:     string(runes[start:end]),
		})
		if end == n {
			break
		}
	}
	return segments
}

// ExpectedCount returns how many segments Chunk produces for a text of n characters.
func (c *WindowChunker) ExpectedCount(n int) int {
	if n == 0 {
		return 0
	}
	if n <= c.window {
		return 1
	}
	stride := c.window - c.overlap
	return (n - c.overlap + stride - 1) / stride
}
