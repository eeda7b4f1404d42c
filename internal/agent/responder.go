package agent

import (
	"context"
	"log"
	"strings"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/stream"
	"github.com/rahul/tabpilot/internal/tools"
)

// Responder answers without a plan. All tool calls of its first model call
// run together through DispatchMany, then a second call writes the answer.
type Responder struct {
	base
	dispatcher *tools.Dispatcher
}

func NewResponder(client llm.Client, dispatcher *tools.Dispatcher, prompts *PromptManager, logger *observability.Logger) *Responder {
	return &Responder{base: base{client: client, prompts: prompts, logger: logger}, dispatcher: dispatcher}
}

// Respond streams the answer through onChunk. onStatus receives the
// userDescription of every tool call before the batch runs.
func (r *Responder) Respond(ctx context.Context, input string, history []llm.ChatMessage, mode governance.Mode, onChunk stream.ChunkFunc, onStatus func(string)) (string, error) {
	observability.SetStatus(observability.RoleResponder, input)
	defer observability.SetStatus(observability.RoleIdle, "")

	prompt, err := r.prompts.Get(RoleResponder)
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	onChunk = joinChunks(onChunk)

	msgs := []llm.Message{system(prompt)}
	msgs = append(msgs, llm.ChatHistory(history)...)
	msgs = append(msgs, user(input))

	res, err := r.call(ctx, RoleResponder, llm.Request{
		Messages:   msgs,
		Tools:      r.dispatcher.Registry().Definitions(tools.ForMode(mode)),
		ToolChoice: llm.ToolChoiceAuto,
	}, onChunk)
	if err != nil {
		return "", err
	}
	if len(res.ToolCalls) == 0 {
		return res.FullResponse, nil
	}

	if onStatus != nil {
		for _, desc := range res.ToolDescriptions {
			onStatus(desc)
		}
	}

	calls := tools.Dedup(res.ToolCalls)
	results := r.dispatcher.DispatchMany(ctx, calls, mode)

	msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: res.FullResponse, ToolCalls: calls})
	for _, result := range results {
		msgs = append(msgs, llm.Message{
			Role:       llm.RoleTool,
			Name:       result.FunctionName,
			Content:    result.Content,
			ToolCallID: result.ToolCallID,
		})
	}

	final, err := r.call(ctx, RoleResponder, llm.Request{Messages: msgs, ToolChoice: llm.ToolChoiceNone}, onChunk)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(final.FullResponse), nil
}

// joinChunks presents the text of consecutive model calls as one stream:
// full keeps growing across calls, first is reported once, and a blank line
// separates the text of each later call.
func joinChunks(onChunk stream.ChunkFunc) stream.ChunkFunc {
	if onChunk == nil {
		return nil
	}
	var full strings.Builder
	started := false
	return func(delta, _ string, callFirst bool) {
		if callFirst && full.Len() > 0 {
			delta = "\n\n" + delta
		}
		full.WriteString(delta)
		first := !started
		started = true
		onChunk(delta, full.String(), first)
	}
}
