// Package agent holds the role agents. Each wraps one model call: it builds
// a role prompt, streams the reply through the decoder, and parses a
// structured answer with a safe fallback.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/plan"
	"github.com/rahul/tabpilot/internal/stream"
)

// base carries what every role agent needs.
type base struct {
	client  llm.Client
	prompts *PromptManager
	logger  *observability.Logger
}

// call issues one streamed model call. Only transport errors are returned.
func (b base) call(ctx context.Context, role string, req llm.Request, onChunk stream.ChunkFunc) (*stream.Result, error) {
	s, err := b.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s model call: %w", role, err)
	}
	res, err := stream.Decode(ctx, s, onChunk)
	if err != nil {
		return nil, fmt.Errorf("%s model call: %w", role, err)
	}
	b.logger.LogLLM(role, req.Messages, res.FullResponse, res.ToolCalls)
	return res, nil
}

func system(prompt string) llm.Message {
	return llm.Message{Role: llm.RoleSystem, Content: prompt}
}

func user(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

// planContext renders the plan the way the executor and validator see it.
func planContext(p plan.Plan, step plan.Step) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%q", p.Title))
	}
	return fmt.Sprintf("## Plan\n%s\n\n## Current step\n%s: %s\n%s", data, step.ID, step.Title, step.Description)
}
