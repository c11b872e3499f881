// Package sqlite is the persisted local index: segments and their vectors live
// in a single SQLite file inside the index directory and are searched in
// memory once loaded.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"wikirag/internal/domain"
	"wikirag/internal/vectorstore/memory"
)

// FileName is the database file created inside the index directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS segments (
	position  INTEGER PRIMARY KEY,
	id        TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Storage is a SQLite-backed vector store.
type Storage struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	loaded *memory.Storage
}

// Open opens or creates the index database inside dir.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Storage{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
		return fmt.Errorf("clearing segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dimension)); err != nil {
		return fmt.Errorf("saving dimension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, segments []domain.Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (position, id, text, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(position) DO UPDATE SET
			id = excluded.id,
			text = excluded.text,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, seg := range segments {
		if len(vectors[i]) != dim {
			return errors.New("vector dimension mismatch")
		}
		if _, err := stmt.ExecContext(ctx, seg.Position, seg.ID, seg.Text, float32SliceToBytes(vectors[i])); err != nil {
			return fmt.Errorf("inserting segment %d: %w", seg.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	mem, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return mem.Search(ctx, vector, topK)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting segments: %w", err)
	}
	return n, nil
}

// Segments returns every stored segment ordered by position.
func (s *Storage) Segments(ctx context.Context) ([]domain.Segment, error) {
	mem, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return mem.Segments(ctx)
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) dimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("index not initialised")
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return strconv.Atoi(v)
}

func (s *Storage) invalidate() {
	s.mu.Lock()
	s.loaded = nil
	s.mu.Unlock()
}

// load reads all rows into an in-memory store on first use.
func (s *Storage) load(ctx context.Context) (*memory.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded != nil {
		return s.loaded, nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT position, id, text, embedding FROM segments ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("loading segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.Segment
	var vectors [][]float32
	for rows.Next() {
		var seg domain.Segment
		var blob []byte
		if err := rows.Scan(&seg.Position, &seg.ID, &seg.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		segments = append(segments, seg)
		vectors = append(vectors, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mem := memory.NewStorage()
	if err := mem.Init(ctx, dim); err != nil {
		return nil, err
	}
	if err := mem.Upsert(ctx, segments, vectors); err != nil {
		return nil, fmt.Errorf("corrupt index: %w", err)
	}
	s.loaded = mem
	return mem, nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
