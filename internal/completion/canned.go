package completion

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ent0n29/mnemo/internal/conversation"
)

// CannedClient provides deterministic local replies when no backend is configured.
type CannedClient struct{}

func NewCannedClient() *CannedClient { return &CannedClient{} }

func (c *CannedClient) Name() string { return "canned" }

func (c *CannedClient) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildCannedReply(messages), nil
}

func buildCannedReply(messages []conversation.Message) string {
	var last *conversation.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			last = &messages[i]
			break
		}
	}
	if last == nil {
		return "I didn't receive a message to respond to. How can I help you?"
	}

	text := strings.ToLower(last.Content)
	words := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	switch {
	case strings.Contains(text, "hello") || containsWord(words, "hi"):
		return "Hello there! I'm running in test mode since no completion API key is configured. To use the actual AI, please set NEBIUS_API_KEY in your environment."
	case strings.Contains(text, "help"):
		return "I'm here to help! Currently running in test mode. To use the full AI capabilities, please configure your API key."
	case strings.Contains(text, "weather"):
		return "I'm sorry, I can't check the weather in test mode. To use the full AI capabilities, please configure your API key."
	default:
		return fmt.Sprintf("You said: \"%s\". This is a test response because no completion API key is configured. To use the actual AI, please set NEBIUS_API_KEY in your environment.", last.Content)
	}
}

func containsWord(words []string, want string) bool {
	for _, w := range words {
		if w == want {
			return true
		}
	}
	return false
}
