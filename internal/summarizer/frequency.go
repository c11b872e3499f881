// Package summarizer produces the short extractive summary shown after indexing.
package summarizer

import (
	"math"
	"sort"
	"strings"

	"wikirag/internal/textutil"
)

// DefaultSentences is used when a non-positive sentence count is requested.
const DefaultSentences = 3

// FrequencySummarizer ranks sentences by content-word frequency.
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

// Summarize picks the maxSentences highest scoring sentences and returns them
// in document order. Knowledge-base heading lines and scrape error sentinel
// lines are dropped before sentences are split.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	var sentences []string
	for _, sent := range textutil.Sentences(bodyText(text)) {
		if sent = strings.Join(strings.Fields(sent), " "); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.ContentWords(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		words := textutil.Words(sent)
		score := 0.0
		for _, tok := range words {
			score += freq[tok]
		}
		// Length normalization keeps long sentences from dominating.
		if l := float64(len(words)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, maxSentences)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

// bodyText joins the prose lines of text, skipping "## Title ##" headings and
// "[ERROR scraping ...]" sentinels. Wrapped rows of one paragraph rejoin.
func bodyText(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isHeading(line) || strings.HasPrefix(line, sentinelPrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

const sentinelPrefix = "[ERROR scraping "

func isHeading(line string) bool {
	return len(line) >= 6 && strings.HasPrefix(line, "## ") && strings.HasSuffix(line, " ##")
}
