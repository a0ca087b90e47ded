package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists memories in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to an in-memory database gets its own copy; pin to one.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT,
			is_global INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, content, source string) (string, error) {
	c, err := normalizeContent(content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, source, is_global, created_at) VALUES (?, ?, ?, 1, ?)`,
		id, c, nullIfEmpty(source), time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT id, content, source, is_global, created_at FROM memories ORDER BY created_at DESC, rowid DESC`)
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return s.ListAll(ctx)
	}
	return s.query(ctx, `SELECT id, content, source, is_global, created_at FROM memories ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			source    sql.NullString
			createdNS int64
		)
		if err := rows.Scan(&r.ID, &r.Content, &source, &r.IsGlobal, &createdNS); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		r.Source = source.String
		r.CreatedAt = time.Unix(0, createdNS).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
