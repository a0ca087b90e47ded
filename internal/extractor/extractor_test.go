package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/logger"
)

type recordingClient struct {
	reply string
	err   error
	calls atomic.Int32
	last  []conversation.Message
}

func (c *recordingClient) Name() string { return "recording" }

func (c *recordingClient) Complete(_ context.Context, messages []conversation.Message) (string, error) {
	c.calls.Add(1)
	c.last = messages
	return c.reply, c.err
}

func TestExtractSendsTwoMessages(t *testing.T) {
	client := &recordingClient{reply: "MEMORY: dog's name is Rex"}
	e := New(client, NewPrompt("", logger.Nop()), logger.Nop())

	got := e.Extract(context.Background(), "My dog's name is Rex")
	if !reflect.DeepEqual(got, []string{"dog's name is Rex"}) {
		t.Fatalf("Extract() = %#v", got)
	}
	if len(client.last) != 2 {
		t.Fatalf("messages sent = %d, want 2", len(client.last))
	}
	if client.last[0].Role != conversation.RoleSystem || !strings.Contains(client.last[0].Content, "NO_MEMORY") {
		t.Fatalf("first message = %+v, want extraction prompt", client.last[0])
	}
	if client.last[1].Role != conversation.RoleUser || client.last[1].Content != "My dog's name is Rex" {
		t.Fatalf("second message = %+v", client.last[1])
	}
}

func TestExtractDegradesToEmpty(t *testing.T) {
	client := &recordingClient{err: errors.New("backend down")}
	e := New(client, nil, logger.Nop())
	if got := e.Extract(context.Background(), "I live in Rome"); len(got) != 0 {
		t.Fatalf("Extract() on backend error = %#v, want empty", got)
	}

	if got := e.Extract(context.Background(), "   "); len(got) != 0 {
		t.Fatalf("Extract() on blank input = %#v, want empty", got)
	}
	if client.calls.Load() != 1 {
		t.Fatalf("calls = %d, want blank input to skip the backend", client.calls.Load())
	}
}

func TestExtractReportsAmbiguity(t *testing.T) {
	client := &recordingClient{reply: "MEMORY: likes jazz NO_MEMORY"}
	e := New(client, nil, logger.Nop())
	var fired bool
	e.OnAmbiguous(func() { fired = true })

	if got := e.Extract(context.Background(), "jazz is fine"); len(got) != 0 {
		t.Fatalf("Extract() = %#v, want empty", got)
	}
	if !fired {
		t.Fatalf("ambiguity hook not fired")
	}
}

func TestPromptLoadsOnceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("custom prompt"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	p := NewPrompt(path, logger.Nop())
	if got := p.Text(); got != "custom prompt" {
		t.Fatalf("Text() = %q", got)
	}
	if err := os.WriteFile(path, []byte("changed"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if got := p.Text(); got != "custom prompt" {
		t.Fatalf("Text() after change = %q, want cached value", got)
	}
}

func TestPromptFallsBackWhenFileMissing(t *testing.T) {
	p := NewPrompt(filepath.Join(t.TempDir(), "missing.txt"), logger.Nop())
	if got := p.Text(); got != fallbackPrompt {
		t.Fatalf("Text() = %q, want fallback", got)
	}
}
