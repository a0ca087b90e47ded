package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/turn"
)

type fakeChatBackend struct {
	store *memory.InMemoryStore
	sent  []string
}

func (f *fakeChatBackend) SendMessage(_ context.Context, _ string, text string) (turn.Result, error) {
	f.sent = append(f.sent, text)
	return turn.Result{
		Reply:       conversation.NewMessage(conversation.RoleAssistant, "echo: "+text),
		NewMemories: []string{"said " + text},
	}, nil
}

func (f *fakeChatBackend) Memories(ctx context.Context) []memory.Record {
	records, _ := f.store.ListAll(ctx)
	return records
}

func (f *fakeChatBackend) CreateMemory(ctx context.Context, content string) (string, error) {
	return f.store.Insert(ctx, content, "")
}

func (f *fakeChatBackend) DeleteMemory(ctx context.Context, id string) error {
	return f.store.Delete(ctx, id)
}

func TestChatLoop(t *testing.T) {
	backend := &fakeChatBackend{store: memory.NewInMemoryStore()}
	var out bytes.Buffer
	c := &chatCommander{
		in:  strings.NewReader("hello\n\n/remember likes tea\n/memories\n/forget nope\n/bogus\n/quit\nnever sent\n"),
		out: &out,
	}

	if err := c.loop(context.Background(), backend, "conv"); err != nil {
		t.Fatalf("loop() error = %v", err)
	}
	if len(backend.sent) != 1 || backend.sent[0] != "hello" {
		t.Fatalf("sent = %#v, want only hello", backend.sent)
	}
	got := out.String()
	for _, want := range []string{"echo: hello", "remembered: said hello", "stored ", "likes tea", "error: ", "unknown command /bogus"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "chat"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}
