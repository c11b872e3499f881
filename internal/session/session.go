// Package session holds the per-process conversation state: the credential,
// the conversation memory and the loaded index. It moves through
// Unconfigured, Ready and Active as the credential is set and the index is
// built.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"wikirag/internal/domain"
	"wikirag/internal/index"
	"wikirag/internal/knowledgebase"
	"wikirag/internal/service"
)

// State is the lifecycle state of a Session.
type State int

const (
	// Unconfigured means no credential has been supplied.
	Unconfigured State = iota
	// Ready means a credential is set but no index is loaded.
	Ready
	// Active means the index is loaded and questions can be answered.
	Active
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Ready:
		return "ready"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Scraper acquires the text of the knowledge-base sources.
type Scraper interface {
	ScrapeAll(ctx context.Context, sources []domain.Source) domain.ScrapedText
}

// Indexer builds or reloads the persisted index.
type Indexer interface {
	BuildOrLoad(ctx context.Context, documentPath, persistPath string) (*index.Index, error)
	Invalidate(persistPath string) error
}

// Answerer answers one question and records the turn in memory.
type Answerer interface {
	Answer(ctx context.Context, question string, memory *domain.Memory) (string, error)
}

// Backends are the collaborators that need the credential.
type Backends struct {
	Indexer  Indexer
	NewChain func(retriever service.Retriever) Answerer
	// Close releases connections held by the backends. May be nil.
	Close func() error
}

// Factory creates the backends for a credential.
type Factory func(ctx context.Context, credential string) (*Backends, error)

// Config holds the artifact locations and sources of a session.
type Config struct {
	Sources      []domain.Source
	DocumentPath string
	PersistPath  string
}

// Context is the explicit per-session state threaded through every operation.
type Context struct {
	Credential string
	Memory     *domain.Memory
	Index      *index.Index
}

// Session orchestrates scraping, indexing and answering for one user.
// Its methods are safe for concurrent use; calls are serialized.
type Session struct {
	mu       sync.Mutex
	cfg      Config
	scraper  Scraper
	factory  Factory
	logger   *slog.Logger
	sc       Context
	backends *Backends
	chain    Answerer
}

// New creates an Unconfigured session. A nil logger uses slog.Default().
func New(cfg Config, scraper Scraper, factory Factory, logger *slog.Logger) *Session {
	if len(cfg.Sources) == 0 {
		cfg.Sources = domain.DefaultSources()
	}
	if cfg.DocumentPath == "" {
		cfg.DocumentPath = knowledgebase.DefaultPath
	}
	if cfg.PersistPath == "" {
		cfg.PersistPath = index.DefaultPersistPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		scraper: scraper,
		factory: factory,
		logger:  logger,
		sc:      Context{Memory: domain.NewMemory()},
	}
}

// SetCredential stores the API key. An empty key returns the session to
// Unconfigured and yields domain.ErrMissingCredential. Changing the key drops
// the loaded index so it is reopened with the new credential; memory is kept.
func (s *Session) SetCredential(credential string) error {
	credential = strings.TrimSpace(credential)
	s.mu.Lock()
	defer s.mu.Unlock()

	if credential == s.sc.Credential && credential != "" {
		return nil
	}
	s.releaseLocked()
	s.sc.Credential = credential
	if credential == "" {
		return domain.ErrMissingCredential
	}
	s.logger.Debug("credential set")
	return nil
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.sc.Credential == "":
		return Unconfigured
	case s.sc.Index == nil:
		return Ready
	default:
		return Active
	}
}

// Ask answers question, building or loading the index first if needed.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sc.Credential == "" {
		return "", domain.ErrMissingCredential
	}
	if err := s.activateLocked(ctx, false); err != nil {
		return "", err
	}
	return s.chain.Answer(ctx, question, s.sc.Memory)
}

// Activate builds or loads the index without asking a question.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sc.Credential == "" {
		return domain.ErrMissingCredential
	}
	return s.activateLocked(ctx, false)
}

// GenerateKnowledgeBase scrapes the sources, writes the PDF and rebuilds the
// index from it. It returns the path of the written PDF.
func (s *Session) GenerateKnowledgeBase(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sc.Credential == "" {
		return "", domain.ErrMissingCredential
	}
	scraped := s.scraper.ScrapeAll(ctx, s.cfg.Sources)
	if err := knowledgebase.Write(s.cfg.DocumentPath, scraped); err != nil {
		return "", err
	}
	s.logger.Info("knowledge base written", "path", s.cfg.DocumentPath, "sources", len(scraped))

	if err := s.activateLocked(ctx, true); err != nil {
		return s.cfg.DocumentPath, err
	}
	return s.cfg.DocumentPath, nil
}

// activateLocked moves the session to Active. With rebuild set, the persisted
// index is discarded first.
func (s *Session) activateLocked(ctx context.Context, rebuild bool) error {
	if s.sc.Index != nil && !rebuild {
		return nil
	}
	if s.backends == nil {
		b, err := s.factory(ctx, s.sc.Credential)
		if err != nil {
			return err
		}
		s.backends = b
	}
	if err := s.closeIndexLocked(); err != nil {
		s.logger.Warn("closing previous index", "error", err)
	}
	if rebuild {
		if err := s.backends.Indexer.Invalidate(s.cfg.PersistPath); err != nil {
			return err
		}
	}
	ix, err := s.backends.Indexer.BuildOrLoad(ctx, s.cfg.DocumentPath, s.cfg.PersistPath)
	if err != nil {
		return err
	}
	s.sc.Index = ix
	s.chain = s.backends.NewChain(ix)
	s.logger.Info("session active", "segments", ix.Len())
	return nil
}

// History returns the recorded turns, oldest first.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.Memory.Turns()
}

// Summary returns the summary of the loaded knowledge base, if any.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sc.Index == nil {
		return ""
	}
	return s.sc.Index.Summary()
}

// Segments returns the number of indexed segments, or 0 before activation.
func (s *Session) Segments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sc.Index == nil {
		return 0
	}
	return s.sc.Index.Len()
}

// DocumentPath returns where the knowledge base PDF is written.
func (s *Session) DocumentPath() string { return s.cfg.DocumentPath }

// Close releases the index and backends.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *Session) closeIndexLocked() error {
	var err error
	if s.sc.Index != nil {
		err = s.sc.Index.Close()
	}
	s.sc.Index = nil
	s.chain = nil
	return err
}

func (s *Session) releaseLocked() error {
	err := s.closeIndexLocked()
	if s.backends != nil && s.backends.Close != nil {
		err = errors.Join(err, s.backends.Close())
	}
	s.backends = nil
	return err
}
