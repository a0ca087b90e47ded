package memory

import (
	"context"
	"strings"
)

// Backend names reported by NewStore.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendInMemory = "in-memory"
)

// NewStore creates a postgres-backed store when configured, then SQLite, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) != "" {
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, BackendPostgres, nil
	}
	if strings.TrimSpace(sqlitePath) != "" {
		s, err := NewSQLiteStore(ctx, sqlitePath)
		if err != nil {
			return nil, "", err
		}
		return s, BackendSQLite, nil
	}
	return NewInMemoryStore(), BackendInMemory, nil
}
