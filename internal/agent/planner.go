package agent

import (
	"context"
	"log"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/plan"
	"github.com/rahul/tabpilot/internal/tools"
)

const plannerFallback = "I'm sorry, I couldn't work out how to help with that. Could you rephrase your request?"

// Decision is the planner's answer: either a direct reply or a draft plan.
type Decision struct {
	Direct  bool
	Message string
	Plan    plan.Plan
}

type plannerReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Plan    *struct {
		Title           string      `json:"title"`
		Description     string      `json:"description"`
		RequiresBrowser bool        `json:"requiresBrowser"`
		Steps           []plan.Step `json:"steps"`
	} `json:"plan"`
}

type Planner struct {
	base
	registry *tools.Registry
}

func NewPlanner(client llm.Client, registry *tools.Registry, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{base: base{client: client, prompts: prompts, logger: logger}, registry: registry}
}

// Plan classifies input into a direct answer or a plan built from the tools
// mode allows.
func (p *Planner) Plan(ctx context.Context, input string, history []llm.ChatMessage, mode governance.Mode) (Decision, error) {
	observability.SetStatus(observability.RolePlanner, input)

	prompt := p.prompts.WithTools(RolePlanner, toolList(p.registry, tools.ForMode(mode)))
	msgs := []llm.Message{system(prompt)}
	msgs = append(msgs, llm.ChatHistory(history)...)
	msgs = append(msgs, user(input))

	res, err := p.call(ctx, RolePlanner, llm.Request{Messages: msgs}, nil)
	if err != nil {
		return Decision{}, err
	}
	return ParsePlannerReply(res.FullResponse), nil
}

// ParsePlannerReply turns the planner's free text into a Decision. Anything
// unusable becomes a generic direct answer.
func ParsePlannerReply(text string) Decision {
	var reply plannerReply
	if !decodeObject(text, &reply) {
		log.Printf("[planner] no usable object in reply, falling back")
		return Decision{Direct: true, Message: plannerFallback}
	}

	switch reply.Type {
	case "direct_response":
		if reply.Message == "" {
			return Decision{Direct: true, Message: plannerFallback}
		}
		return Decision{Direct: true, Message: reply.Message}
	case "plan":
		if reply.Plan == nil {
			break
		}
		pl, err := plan.New(reply.Plan.Title, reply.Plan.Description, reply.Plan.RequiresBrowser, reply.Plan.Steps)
		if err != nil {
			log.Printf("[planner] rejected plan: %v", err)
			break
		}
		return Decision{Plan: pl}
	}
	return Decision{Direct: true, Message: plannerFallback}
}
