package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/waply/internal/ollama"
	"github.com/antoniostano/waply/internal/store"
)

const systemPrompt = "You are chatting on WhatsApp like a friendly human.\n" +
	"- Write natural English.\n" +
	"- Keep it short (1-2 sentences).\n" +
	"- No AI disclaimers.\n" +
	"- No formal tone.\n"

// historyWindow caps how many prior turns are sent to the backend.
const historyWindow = 8

// ChatBackend produces one reply for a message sequence.
type ChatBackend interface {
	Chat(ctx context.Context, messages []ollama.Message) (string, error)
}

// Generator turns a bounded conversation history plus new user input
// into a single reply string.
type Generator struct {
	backend ChatBackend
}

func NewGenerator(backend ChatBackend) *Generator {
	return &Generator{backend: backend}
}

// Generate builds the prompt (system instruction, last turns, new user
// message) and invokes the backend. Output is not deterministic; callers
// must not assume stable text for the same input.
func (g *Generator) Generate(ctx context.Context, history []store.TurnRecord, userInput string) (string, error) {
	messages := make([]ollama.Message, 0, historyWindow+2)
	messages = append(messages, ollama.Message{Role: "system", Content: systemPrompt})

	turns := normalizeHistory(history)
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	messages = append(messages, turns...)
	messages = append(messages, ollama.Message{Role: "user", Content: userInput})

	out, err := g.backend.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// normalizeHistory keeps only well-formed user/assistant turns with
// non-empty content.
func normalizeHistory(history []store.TurnRecord) []ollama.Message {
	out := make([]ollama.Message, 0, len(history))
	for _, rec := range history {
		if rec.Role != store.RoleUser && rec.Role != store.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(rec.Content)
		if content == "" {
			continue
		}
		out = append(out, ollama.Message{Role: rec.Role, Content: content})
	}
	return out
}
