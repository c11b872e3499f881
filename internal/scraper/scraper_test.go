package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

const page = `<html><body>
<h1>Title</h1>
<p>First paragraph.</p>
<p>   </p>
<div><p>Second <b>bold</b> paragraph.</p></div>
</body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("User-Agent") == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/wiki/")
		fmt.Fprintf(w, "<html><body><p>About %s.</p></body></html>", name)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ExtractsNonBlankParagraphs(t *testing.T) {
	srv := newServer(t, nil)
	s := New(Config{}, quietLogger())

	text, err := s.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond bold paragraph.", text)
}

func TestScrapeAll_OneEntryPerSourceInOrder(t *testing.T) {
	srv := newServer(t, nil)
	sources := []domain.Source{
		{Title: "A", URL: srv.URL + "/wiki/A"},
		{Title: "B", URL: srv.URL + "/missing"},
		{Title: "C", URL: srv.URL + "/wiki/C"},
	}
	out := New(Config{}, quietLogger()).ScrapeAll(context.Background(), sources)

	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Source.Title)
	assert.Equal(t, "About A.", out[0].Text)
	assert.True(t, strings.HasPrefix(out[1].Text, "[ERROR scraping "+srv.URL+"/missing]: "))
	assert.Contains(t, out[1].Text, "404")
	assert.Equal(t, "About C.", out[2].Text)
}

func TestScrapeAll_UnreachableSourceYieldsSentinel(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL + "/wiki/Gone"
	dead.Close()

	out := New(Config{}, quietLogger()).ScrapeAll(context.Background(), []domain.Source{{Title: "Gone", URL: url}})
	require.Len(t, out, 1)
	assert.True(t, strings.HasPrefix(out[0].Text, "[ERROR scraping "+url+"]: "))
}

func TestScrapeAll_ConcurrentKeepsOrder(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	var sources []domain.Source
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("P%d", i)
		sources = append(sources, domain.Source{Title: name, URL: srv.URL + "/wiki/" + name})
	}

	out := New(Config{Concurrency: 4, RequestsPerSecond: 1000, Burst: 8}, quietLogger()).
		ScrapeAll(context.Background(), sources)

	require.Len(t, out, len(sources))
	for i, st := range out {
		assert.Equal(t, sources[i].Title, st.Source.Title)
		assert.Equal(t, "About "+sources[i].Title+".", st.Text)
	}
	assert.Equal(t, int32(8), hits.Load())
}

func TestScrapeAll_CancelledContext(t *testing.T) {
	srv := newServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(Config{}, quietLogger()).ScrapeAll(ctx, []domain.Source{{Title: "A", URL: srv.URL + "/wiki/A"}})
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "[ERROR scraping")
}

func TestParagraphs_Empty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body><div>no paragraphs</div></body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "", Paragraphs(doc))
}
