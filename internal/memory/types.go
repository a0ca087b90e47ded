package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrValidation = errors.New("memory content must not be empty")
	ErrNotFound   = errors.New("memory not found")
)

// Record is one remembered fact. Records are immutable once stored.
type Record struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"`
	IsGlobal  bool      `json:"is_global"`
}

// Store persists memory records. Implementations assign ids and creation times;
// list operations return newest first.
type Store interface {
	Insert(ctx context.Context, content, source string) (string, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

func normalizeContent(content string) (string, error) {
	c := strings.TrimSpace(content)
	if c == "" {
		return "", ErrValidation
	}
	return c, nil
}

// Contents projects records onto their text.
func Contents(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Content)
	}
	return out
}
