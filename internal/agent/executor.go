package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/plan"
	"github.com/rahul/tabpilot/internal/tools"
)

// Action is the executor's choice for a step. Call is nil when no tool could
// be determined; Message then says why.
type Action struct {
	Call        *llm.ToolCall
	Reason      string
	Description string
	Message     string
}

type Executor struct {
	base
	registry *tools.Registry
}

func NewExecutor(client llm.Client, registry *tools.Registry, prompts *PromptManager, logger *observability.Logger) *Executor {
	return &Executor{base: base{client: client, prompts: prompts, logger: logger}, registry: registry}
}

// Next asks for exactly one tool call that advances step. feedback is the
// validator's note from the previous iteration.
func (e *Executor) Next(ctx context.Context, p plan.Plan, step plan.Step, feedback string, mode governance.Mode) (Action, error) {
	observability.SetStatus(observability.RoleExecutor, step.Title)

	var sb strings.Builder
	sb.WriteString(planContext(p, step))
	if feedback != "" {
		fmt.Fprintf(&sb, "\n\n## Validator feedback\n%s", feedback)
	}

	prompt, err := e.prompts.Get(RoleExecutor)
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	req := llm.Request{
		Messages:   []llm.Message{system(prompt), user(sb.String())},
		Tools:      e.registry.Definitions(tools.ForMode(mode)),
		ToolChoice: llm.ToolChoiceAuto,
	}

	res, err := e.call(ctx, RoleExecutor, req, nil)
	if err != nil {
		return Action{}, err
	}
	return chooseAction(res.ToolCalls, res.FullResponse, step), nil
}

// chooseAction keeps the first tool call and drops the rest.
func chooseAction(calls []llm.ToolCall, text string, step plan.Step) Action {
	if len(calls) == 0 || calls[0].Function.Name == "" {
		msg := strings.TrimSpace(text)
		if msg == "" {
			msg = "no tool could be determined for this step"
		}
		return Action{Message: msg}
	}
	if len(calls) > 1 {
		log.Printf("[executor] model returned %d tool calls for %s, keeping the first", len(calls), step.ID)
	}

	call := calls[0]
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()
	}
	if call.Type == "" {
		call.Type = "function"
	}

	act := Action{Call: &call, Reason: step.Title}
	var args struct {
		Reason          string `json:"reason"`
		UserDescription string `json:"userDescription"`
	}
	if json.Unmarshal([]byte(call.Function.Arguments), &args) == nil {
		if args.Reason != "" {
			act.Reason = args.Reason
		}
		act.Description = args.UserDescription
	}
	return act
}
