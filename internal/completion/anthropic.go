package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ent0n29/mnemo/internal/conversation"
)

const anthropicProvider = "anthropic"

// AnthropicClient serves completions from the Anthropic Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.AnthropicAPIKey)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.AnthropicModel,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (c *AnthropicClient) Name() string { return anthropicProvider }

func (c *AnthropicClient) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
	}
	// The Messages API takes system instructions out of band.
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case conversation.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &Error{Provider: anthropicProvider, Kind: KindProtocol, Err: errors.New("response contained no text blocks")}
	}
	return out.String(), nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   anthropicProvider,
			Kind:       KindStatus,
			Status:     apiErr.StatusCode,
			StatusText: http.StatusText(apiErr.StatusCode),
			Body:       apiErr.Error(),
			Err:        err,
		}
	}
	ce, ok := classifyTransportError(err).(*Error)
	if !ok {
		return err
	}
	ce.Provider = anthropicProvider
	return ce
}
