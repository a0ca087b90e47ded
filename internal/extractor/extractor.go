// Package extractor mines single user messages for facts worth remembering.
package extractor

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ent0n29/mnemo/internal/completion"
	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/policy"
)

//go:embed prompt.txt
var defaultPrompt string

// fallbackPrompt is used when a configured prompt file cannot be read.
const fallbackPrompt = "You are a Memory Agent. Extract important information from user messages that should be remembered."

// Extractor returns zero or more facts from one user message. It never fails.
type Extractor interface {
	Extract(ctx context.Context, userMessage string) []string
}

// Prompt loads the extraction instructions once per process.
type Prompt struct {
	path   string
	logger *slog.Logger

	once sync.Once
	text string
}

// NewPrompt reads from path on first use; an empty path selects the built-in prompt.
func NewPrompt(path string, logger *slog.Logger) *Prompt {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prompt{path: strings.TrimSpace(path), logger: logger}
}

func (p *Prompt) Text() string {
	p.once.Do(func() {
		if p.path == "" {
			p.text = defaultPrompt
			return
		}
		raw, err := os.ReadFile(p.path)
		if err != nil || strings.TrimSpace(string(raw)) == "" {
			p.logger.Error("loading extraction prompt failed; using fallback", "path", p.path, "err", err)
			p.text = fallbackPrompt
			return
		}
		p.text = string(raw)
		p.logger.Info("extraction prompt loaded", "path", p.path, "chars", len(p.text))
	})
	return p.text
}

// LLMExtractor asks the completion backend to apply the extraction prompt.
type LLMExtractor struct {
	client      completion.Client
	prompt      *Prompt
	logger      *slog.Logger
	onAmbiguous func()
}

func New(client completion.Client, prompt *Prompt, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if prompt == nil {
		prompt = NewPrompt("", logger)
	}
	return &LLMExtractor{client: client, prompt: prompt, logger: logger}
}

// OnAmbiguous registers a hook fired when a response mixes NO_MEMORY and MEMORY: markers.
func (e *LLMExtractor) OnAmbiguous(hook func()) {
	e.onAmbiguous = hook
}

func (e *LLMExtractor) Extract(ctx context.Context, userMessage string) []string {
	if strings.TrimSpace(userMessage) == "" {
		return nil
	}

	// Single-turn and stateless: no conversation history is sent.
	response, err := e.client.Complete(ctx, []conversation.Message{
		conversation.NewMessage(conversation.RoleSystem, e.prompt.Text()),
		conversation.NewMessage(conversation.RoleUser, userMessage),
	})
	if err != nil {
		e.logger.Warn("memory extraction failed", "provider", e.client.Name(), "err", err)
		return nil
	}

	result := Parse(response)
	if result.Ambiguous {
		e.logger.Warn("extraction response contained both NO_MEMORY and MEMORY: markers; treating as no memory",
			"response", policy.LogPreview(response, 200))
		if e.onAmbiguous != nil {
			e.onAmbiguous()
		}
	}
	e.logger.Debug("memory extraction finished",
		"message", policy.LogPreview(userMessage, 80),
		"facts", len(result.Facts))
	return result.Facts
}
