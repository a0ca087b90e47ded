package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ent0n29/mnemo/internal/app"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/turn"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	memoryNote      = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
)

const chatLongDesc string = `Chat with the assistant in the terminal.

The chat runs in-process against the configured completion backend and
memory store. Facts you mention are remembered across sessions when a
persistent store (DATABASE_URL or MEMORY_SQLITE_PATH) is configured.

Commands:
  /memories          list stored memories
  /remember <text>   store a memory directly
  /forget <id>       delete a memory
  /quit              exit`

type chatCommander struct {
	in  io.Reader
	out io.Writer
}

func newChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cfg, log, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			built, err := app.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					log.Error("cleanup failed", "err", err)
				}
			}()
			conv := built.Conversations.Create()
			return cmder.loop(cmd.Context(), built.Orchestrator, conv.ID())
		},
	}

	return cmd
}

// chatBackend is the slice of the orchestrator the REPL drives.
type chatBackend interface {
	SendMessage(ctx context.Context, conversationID, text string) (turn.Result, error)
	Memories(ctx context.Context) []memory.Record
	CreateMemory(ctx context.Context, content string) (string, error)
	DeleteMemory(ctx context.Context, id string) error
}

func (c *chatCommander) loop(ctx context.Context, backend chatBackend, conversationID string) error {
	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, backend, line); quit {
				return nil
			}
			continue
		}

		result, err := backend.SendMessage(ctx, conversationID, line)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		fmt.Fprintf(c.out, "%s%s\n", assistantPrompt, result.Reply.Content)
		for _, fact := range result.NewMemories {
			fmt.Fprintln(c.out, memoryNote.Render("remembered: "+fact))
		}
	}
}

func (c *chatCommander) command(ctx context.Context, backend chatBackend, line string) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/memories":
		records := backend.Memories(ctx)
		if len(records) == 0 {
			fmt.Fprintln(c.out, "no memories yet")
		}
		for _, r := range records {
			fmt.Fprintf(c.out, "%s  %s  %s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Content)
		}
	case "/remember":
		id, err := backend.CreateMemory(ctx, arg)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "stored %s\n", id)
	case "/forget":
		if err := backend.DeleteMemory(ctx, arg); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "deleted")
	default:
		fmt.Fprintf(c.out, "unknown command %s\n", name)
	}
	return false
}
