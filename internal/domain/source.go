package domain

// Source is a named page the knowledge base is built from.
type Source struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// DefaultSources returns the Wikipedia articles the demo ships with.
func DefaultSources() []Source {
	return []Source{
		{Title: "Generative AI", URL: "https://en.wikipedia.org/wiki/Generative_artificial_intelligence"},
		{Title: "AGI", URL: "https://en.wikipedia.org/wiki/Artificial_general_intelligence"},
		{Title: "RAG", URL: "https://en.wikipedia.org/wiki/Retrieval-augmented_generation"},
		{Title: "LLM", URL: "https://en.wikipedia.org/wiki/Large_language_model"},
	}
}

// SourceText is the text acquired for one source. Text holds an error
// sentinel when the fetch failed.
type SourceText struct {
	Source Source
	Text   string
}

// ScrapedText holds one entry per source, in source order.
type ScrapedText []SourceText

// Get returns the text stored for title.
func (s ScrapedText) Get(title string) (string, bool) {
	for _, st := range s {
		if st.Source.Title == title {
			return st.Text, true
		}
	}
	return "", false
}
