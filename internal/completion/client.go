// Package completion talks to the chat-completion backend that produces
// assistant replies and drives memory extraction.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/mnemo/internal/conversation"
)

// Client sends an ordered message list to a language model and returns its text.
type Client interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
	Name() string
}

// Config controls client construction.
type Config struct {
	Mode            string
	HTTPURL         string
	HTTPModelPath   string
	HTTPModel       string
	HTTPAPIKey      string
	AnthropicAPIKey string
	AnthropicModel  string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	MaxRetries      int
}

func New(cfg Config, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoClient(cfg, logger), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPAPIKey) == "" {
			return nil, fmt.Errorf("completion API key is required for http mode")
		}
		return NewHTTPClient(cfg, logger), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, fmt.Errorf("anthropic API key is required for anthropic mode")
		}
		return NewAnthropicClient(cfg), nil
	case "canned":
		return NewCannedClient(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

func newAutoClient(cfg Config, logger *slog.Logger) Client {
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		return NewAnthropicClient(cfg)
	}
	if strings.TrimSpace(cfg.HTTPAPIKey) != "" {
		return NewHTTPClient(cfg, logger)
	}
	logger.Warn("no completion API key configured; running with canned replies")
	return NewCannedClient()
}
