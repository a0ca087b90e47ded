package completion

import (
	"context"
	"log/slog"

	"github.com/ent0n29/mnemo/internal/conversation"
)

// Graceful wraps a Client so that every call yields displayable text.
// Backend failures come back as a human-readable description instead of an error.
type Graceful struct {
	client  Client
	logger  *slog.Logger
	onError func(provider string, kind Kind)
}

func NewGraceful(client Client, logger *slog.Logger, onError func(provider string, kind Kind)) *Graceful {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graceful{client: client, logger: logger, onError: onError}
}

func (g *Graceful) Reply(ctx context.Context, messages []conversation.Message) string {
	text, err := g.client.Complete(ctx, messages)
	if err == nil {
		return text
	}
	kind := KindOf(err)
	g.logger.Error("completion failed", "provider", g.client.Name(), "kind", kind, "err", err)
	if g.onError != nil {
		g.onError(g.client.Name(), kind)
	}
	return Describe(err)
}
