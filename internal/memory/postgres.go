package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists memories in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT,
			is_global BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories (created_at DESC, seq DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, content, source string) (string, error) {
	c, err := normalizeContent(content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO memories (id, content, source, is_global) VALUES ($1, $2, NULLIF($3, ''), TRUE)`,
		id, c, source,
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Record, error) {
	return s.list(ctx, 0)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx, limit)
}

func (s *PostgresStore) list(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT id, content, source, is_global, created_at FROM memories ORDER BY created_at DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			r      Record
			source *string
		)
		if err := rows.Scan(&r.ID, &r.Content, &source, &r.IsGlobal, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if source != nil {
			r.Source = *source
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
