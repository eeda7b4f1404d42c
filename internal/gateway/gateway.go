package gateway

import (
	"context"
	"log"
	"strings"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/orchestrator"
	"github.com/rahul/tabpilot/internal/stream"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner runs one planned turn.
type Runner interface {
	Run(ctx context.Context, input string, history []llm.ChatMessage, onChunk stream.ChunkFunc) orchestrator.Outcome
	Mode() governance.Mode
}

// QuickResponder answers without a plan.
type QuickResponder interface {
	Respond(ctx context.Context, input string, history []llm.ChatMessage, mode governance.Mode, onChunk stream.ChunkFunc, onStatus func(string)) (string, error)
}

// History is the conversation store the gateway owns.
type History interface {
	Append(ctx context.Context, chatID string, msg llm.ChatMessage) (llm.ChatMessage, error)
	History(ctx context.Context, chatID string, limit int) ([]llm.ChatMessage, error)
	Clear(ctx context.Context, chatID string) error
}

const (
	CommandReset = "/reset"
	CommandQuick = "/quick"
	CommandHelp  = "/help"
	CommandStart = "/start"
)

const helpText = `Send me a task and I will plan it and work through it in the browser.
/quick <question> - answer right away using search and read-only tools
/reset - forget this conversation
/help - show this message`

const quickFailure = "I'm having trouble thinking right now..."

// Conversation connects a chat to the orchestrator. The chat history lives
// here, outside the orchestration core, and is passed to each turn by value.
type Conversation struct {
	runner       Runner
	responder    QuickResponder
	store        History
	HistoryLimit int
}

func NewConversation(runner Runner, responder QuickResponder, store History) *Conversation {
	return &Conversation{runner: runner, responder: responder, store: store, HistoryLimit: 10}
}

// Handle answers one incoming message. onChunk receives streamed text and
// onStatus short progress notes; both may be nil.
func (c *Conversation) Handle(ctx context.Context, chatID, text string, onChunk stream.ChunkFunc, onStatus func(string)) string {
	text = strings.TrimSpace(text)
	cmd, rest := splitCommand(text)

	switch cmd {
	case "":
		if text == "" {
			return ""
		}
	case CommandReset:
		if err := c.store.Clear(ctx, chatID); err != nil {
			log.Printf("[gateway] failed to clear %s: %v", chatID, err)
			return "I couldn't clear the conversation."
		}
		return "Conversation cleared."
	case CommandHelp, CommandStart:
		return helpText
	case CommandQuick:
		if rest == "" {
			return "Usage: /quick <question>"
		}
	default:
		return "Unknown command. " + helpText
	}

	history, err := c.store.History(ctx, chatID, c.HistoryLimit)
	if err != nil {
		log.Printf("[gateway] failed to load history for %s: %v", chatID, err)
	}

	var reply string
	if cmd == CommandQuick {
		text = rest
		reply = c.quick(ctx, text, history, onChunk, onStatus)
	} else {
		reply = c.runner.Run(ctx, text, history, onChunk).Reply
	}

	if _, err := c.store.Append(ctx, chatID, llm.ChatMessage{Type: llm.ChatUser, Content: text}); err != nil {
		log.Printf("[gateway] failed to store message: %v", err)
	}
	if _, err := c.store.Append(ctx, chatID, llm.ChatMessage{Type: llm.ChatAI, Content: reply}); err != nil {
		log.Printf("[gateway] failed to store reply: %v", err)
	}
	return reply
}

func (c *Conversation) quick(ctx context.Context, text string, history []llm.ChatMessage, onChunk stream.ChunkFunc, onStatus func(string)) string {
	if c.responder == nil {
		return c.runner.Run(ctx, text, history, onChunk).Reply
	}
	reply, err := c.responder.Respond(ctx, text, history, c.runner.Mode(), onChunk, onStatus)
	if err != nil {
		log.Printf("Error thinking: %v", err)
		return quickFailure
	}
	return reply
}

// splitCommand returns the leading /command (without a @bot suffix) and the
// rest of the text.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

// chunks splits text into pieces of at most limit bytes, preferring line
// breaks.
func chunks(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
