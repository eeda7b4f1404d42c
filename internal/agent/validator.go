package agent

import (
	"context"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/plan"
	"github.com/rahul/tabpilot/internal/stream"
)

type Verdict string

const (
	StepCompleted  Verdict = "step_completed"
	StepInProgress Verdict = "step_in_progress"
	PlanCompleted  Verdict = "plan_completed"
)

const validatorFallback = "Sorry, I could not check the result of that action. Let me try again."

// Validation is the validator's judgement of the last tool call.
type Validation struct {
	Status       Verdict     `json:"status"`
	Feedback     string      `json:"feedback"`
	FinalMessage string      `json:"finalMessage"`
	Patch        *plan.Patch `json:"updatedPlan,omitempty"`
}

type Validator struct {
	base
	minDelay time.Duration
	maxDelay time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithRestreamDelay sets the per-word delay range of the final re-stream.
func WithRestreamDelay(lo, hi time.Duration) ValidatorOption {
	return func(v *Validator) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		v.minDelay, v.maxDelay = lo, hi
	}
}

func NewValidator(client llm.Client, prompts *PromptManager, logger *observability.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		base:     base{client: client, prompts: prompts, logger: logger},
		minDelay: 15 * time.Millisecond,
		maxDelay: 45 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate judges the plan after a tool call on step. When the plan is
// complete the final message is replayed word by word through onChunk.
func (v *Validator) Validate(ctx context.Context, p plan.Plan, step plan.Step, onChunk stream.ChunkFunc) (Validation, error) {
	observability.SetStatus(observability.RoleValidator, step.Title)

	prompt, err := v.prompts.Get(RoleValidator)
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	req := llm.Request{Messages: []llm.Message{system(prompt), user(planContext(p, step))}}

	res, err := v.call(ctx, RoleValidator, req, nil)
	if err != nil {
		return Validation{}, err
	}

	val := ParseValidatorReply(res.FullResponse)
	v.logger.LogValidation(p.ID, step.ID, string(val.Status), val.Feedback)

	if val.Status == PlanCompleted {
		if val.FinalMessage == "" {
			val.FinalMessage = val.Feedback
		}
		if val.FinalMessage == "" {
			val.FinalMessage = "All done: " + p.Title + "."
		}
		v.restream(ctx, val.FinalMessage, onChunk)
	}
	return val, nil
}

// ParseValidatorReply turns the validator's free text into a Validation.
// Anything unusable keeps the step in progress with an apology.
func ParseValidatorReply(text string) Validation {
	var val Validation
	if !decodeObject(text, &val) {
		log.Printf("[validator] no usable object in reply, falling back")
		return Validation{Status: StepInProgress, Feedback: validatorFallback}
	}
	switch val.Status {
	case StepCompleted, StepInProgress, PlanCompleted:
		return val
	}
	log.Printf("[validator] unknown status %q, falling back", val.Status)
	return Validation{Status: StepInProgress, Feedback: validatorFallback}
}

// restream replays text through onChunk one word at a time with a random
// delay, matching the cadence of live model output. It stops early when ctx
// is done.
func (v *Validator) restream(ctx context.Context, text string, onChunk stream.ChunkFunc) {
	if onChunk == nil {
		return
	}
	words := strings.SplitAfter(text, " ")
	var full strings.Builder
	for i, w := range words {
		if w == "" {
			continue
		}
		if i > 0 {
			timer := time.NewTimer(v.delay())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		full.WriteString(w)
		onChunk(w, full.String(), i == 0)
	}
}

func (v *Validator) delay() time.Duration {
	if v.maxDelay <= v.minDelay {
		return v.minDelay
	}
	return v.minDelay + rand.N(v.maxDelay-v.minDelay)
}
