package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record // insertion order, oldest first
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, content, source string) (string, error) {
	c, err := normalizeContent(content)
	if err != nil {
		return "", err
	}
	rec := Record{
		ID:        uuid.NewString(),
		Content:   c,
		CreatedAt: time.Now().UTC(),
		Source:    source,
		IsGlobal:  true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListAll(ctx context.Context) ([]Record, error) {
	return s.ListRecent(ctx, 0)
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
