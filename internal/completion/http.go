package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/reliability"
)

const (
	httpProvider     = "http"
	maxResponseBytes = 4 << 20
	maxErrorBody     = 4 << 10
)

// HTTPClient calls a Nebius-style completion endpoint.
type HTTPClient struct {
	url         string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	client      *http.Client
	logger      *slog.Logger
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type wireResponse struct {
	Result *struct {
		Generations []struct {
			Text string `json:"text"`
		} `json:"generations"`
	} `json:"result"`
	Choices []struct {
		Text    string `json:"text"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	url := strings.TrimRight(strings.TrimSpace(cfg.HTTPURL), "/")
	if path := strings.Trim(strings.TrimSpace(cfg.HTTPModelPath), "/"); path != "" {
		url += "/" + path
	}
	return &HTTPClient{
		url:         url,
		apiKey:      strings.TrimSpace(cfg.HTTPAPIKey),
		model:       cfg.HTTPModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (c *HTTPClient) Name() string { return httpProvider }

func (c *HTTPClient) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	req := wireRequest{
		Model:       c.model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Provider: httpProvider, Kind: KindUnknown, Err: fmt.Errorf("marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, 250*time.Millisecond, 4*time.Second)
			c.logger.Debug("retrying completion request", "attempt", attempt, "delay", delay, "err", lastErr)
			if err := reliability.Wait(ctx, delay); err != nil {
				return "", lastErr
			}
		}

		text, err := c.do(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var ce *Error
		if !errors.As(err, &ce) || ce.Kind != KindStatus || !reliability.IsRetryableHTTPStatus(ce.Status) {
			return "", err
		}
	}
	return "", lastErr
}

func (c *HTTPClient) do(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Provider: httpProvider, Kind: KindUnknown, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)

	c.logger.Debug("sending completion request", "url", c.url, "model", c.model)
	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return "", &Error{
			Provider:   httpProvider,
			Kind:       KindStatus,
			Status:     res.StatusCode,
			StatusText: http.StatusText(res.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", &Error{Provider: httpProvider, Kind: KindNoResponse, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed wireResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Provider: httpProvider, Kind: KindProtocol, Err: fmt.Errorf("decode response: %w", err)}
	}
	if text := extractGeneratedText(parsed); text != "" {
		return text, nil
	}
	return "", &Error{Provider: httpProvider, Kind: KindProtocol, Err: errors.New("invalid response format from completion backend")}
}

func extractGeneratedText(r wireResponse) string {
	if r.Result != nil && len(r.Result.Generations) > 0 && r.Result.Generations[0].Text != "" {
		return r.Result.Generations[0].Text
	}
	if len(r.Choices) > 0 {
		if r.Choices[0].Message != nil && r.Choices[0].Message.Content != "" {
			return r.Choices[0].Message.Content
		}
		return r.Choices[0].Text
	}
	return ""
}

func classifyTransportError(err error) error {
	kind := KindUnknown
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = KindNoResponse
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &dnsErr):
		kind = KindUnavailable
	case errors.As(err, &opErr) && opErr.Op == "dial":
		kind = KindUnavailable
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindNoResponse
	}
	return &Error{Provider: httpProvider, Kind: kind, Err: err}
}
