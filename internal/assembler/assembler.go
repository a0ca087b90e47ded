// Package assembler builds the message list sent to the completion backend.
package assembler

import (
	"fmt"
	"strings"

	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/memory"
)

const (
	DefaultPersona = "You are a helpful, friendly and intelligent personal assistant."

	memoryHeader      = "Here are some relevant memories about the user:"
	memoryInstruction = "Use these memories to personalize your response when relevant."
)

// Assemble returns a new slice whose first entry is a system message carrying
// any memories, followed by history in order. history is not modified.
func Assemble(history []conversation.Message, memories []memory.Record) []conversation.Message {
	return AssembleWithPersona(history, memories, DefaultPersona)
}

// AssembleWithPersona is Assemble with a caller-supplied persona used when
// history does not start with a system message.
func AssembleWithPersona(history []conversation.Message, memories []memory.Record, persona string) []conversation.Message {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}

	out := make([]conversation.Message, 0, len(history)+1)
	if len(history) > 0 && history[0].Role == conversation.RoleSystem {
		out = append(out, history...)
	} else {
		out = append(out, conversation.NewMessage(conversation.RoleSystem, persona))
		out = append(out, history...)
	}

	if block := memoryBlock(memories); block != "" {
		system := out[0]
		system.Content = system.Content + "\n\n" + block
		out[0] = system
	}
	return out
}

func memoryBlock(memories []memory.Record) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(memoryHeader)
	b.WriteString("\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "Memory %d: %s\n", i+1, m.Content)
	}
	b.WriteString("\n")
	b.WriteString(memoryInstruction)
	return b.String()
}
