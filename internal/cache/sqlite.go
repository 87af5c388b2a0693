package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/rag-assistant/internal/vector"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS semantic_cache (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	answer      TEXT NOT NULL,
	chunks_json TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	embedding   BLOB NOT NULL
)`

// SQLiteStore persists cache records in a SQLite file. Nearest-neighbor
// lookup is a full scan, which is fine for cache-sized tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO semantic_cache (id, question, answer, chunks_json, created_at, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Answer, rec.ChunksJSON, rec.CreatedAt.UnixNano(), vector.Encode(rec.Embedding),
	)
	if err != nil {
		return fmt.Errorf("inserting cache record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Nearest(ctx context.Context, embedding []float32) (*Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, chunks_json, created_at, embedding FROM semantic_cache ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying cache records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			created int64
			blob    []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &rec.ChunksJSON, &created, &blob); err != nil {
			return nil, fmt.Errorf("scanning cache record: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		if rec.Embedding, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("decoding cache record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache records: %w", err)
	}

	return nearest(records, embedding), nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM semantic_cache`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM semantic_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache records: %w", err)
	}
	return n, nil
}
