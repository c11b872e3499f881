// Package scraper acquires the paragraph text of the configured source pages.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"wikirag/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "wikirag/1.0 (knowledge base builder; +https://github.com/wikirag)"
)

// Config configures a Scraper.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// Concurrency bounds parallel fetches. Values <= 1 fetch sequentially.
	Concurrency int
	// RequestsPerSecond paces fetches. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Scraper fetches pages and extracts the text of their <p> elements.
type Scraper struct {
	client      *http.Client
	userAgent   string
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Scraper. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:      client,
		userAgent:   cfg.UserAgent,
		concurrency: cfg.Concurrency,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		logger:      logger,
	}
}

// ScrapeAll fetches every source and returns exactly one entry per source,
// in source order. A source that cannot be fetched gets the error sentinel
// as its text; the batch never fails as a whole.
func (s *Scraper) ScrapeAll(ctx context.Context, sources []domain.Source) domain.ScrapedText {
	out := make(domain.ScrapedText, len(sources))
	scrapeOne := func(i int) {
		src := sources[i]
		text, err := s.Fetch(ctx, src.URL)
		if err != nil {
			s.logger.Warn("scrape failed", "title", src.Title, "url", src.URL, "error", err)
			text = (&domain.SourceFetchError{URL: src.URL, Err: err}).Error()
		} else {
			s.logger.Info("scraped source", "title", src.Title, "chars", len(text))
		}
		out[i] = domain.SourceText{Source: src, Text: text}
	}

	if s.concurrency <= 1 {
		for i := range sources {
			scrapeOne(i)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range sources {
		g.Go(func() error {
			scrapeOne(i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Fetch downloads url and returns its non-blank paragraph texts joined by "\n".
func (s *Scraper) Fetch(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return Paragraphs(doc), nil
}

// Paragraphs returns the trimmed text of every non-blank <p> in doc.
func Paragraphs(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}
