// Package orchestrator drives a plan from the planner's draft through
// execution and validation to a final reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/tabpilot/internal/agent"
	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
	"github.com/rahul/tabpilot/internal/plan"
	"github.com/rahul/tabpilot/internal/stream"
	"github.com/rahul/tabpilot/internal/tools"
)

// DefaultMaxIterations bounds the execution loop.
const DefaultMaxIterations = 12

const apology = "Sorry, something went wrong while working on your request. Please try again."

type Planner interface {
	Plan(ctx context.Context, input string, history []llm.ChatMessage, mode governance.Mode) (agent.Decision, error)
}

type StepExecutor interface {
	Next(ctx context.Context, p plan.Plan, step plan.Step, feedback string, mode governance.Mode) (agent.Action, error)
}

type Validator interface {
	Validate(ctx context.Context, p plan.Plan, step plan.Step, onChunk stream.ChunkFunc) (agent.Validation, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, call llm.ToolCall, mode governance.Mode) tools.Result
}

// Indicator shows that the assistant is working in the browser.
type Indicator interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
}

// Outcome is the result of one turn. Plan is nil for direct answers.
type Outcome struct {
	Reply string
	Plan  *plan.Plan
}

type Orchestrator struct {
	planner       Planner
	executor      StepExecutor
	validator     Validator
	dispatcher    Dispatcher
	indicator     Indicator
	logger        *observability.Logger
	mode          governance.Mode
	maxIterations int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

func WithIndicator(ind Indicator) Option {
	return func(o *Orchestrator) { o.indicator = ind }
}

func WithMode(mode governance.Mode) Option {
	return func(o *Orchestrator) { o.mode = mode }
}

func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func New(planner Planner, executor StepExecutor, validator Validator, dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:       planner,
		executor:      executor,
		validator:     validator,
		dispatcher:    dispatcher,
		mode:          governance.ModeRestricted,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Mode returns the permission mode tool calls run under.
func (o *Orchestrator) Mode() governance.Mode {
	return o.mode
}

// turn is the state of one Run call.
type turn struct {
	o        *Orchestrator
	plan     plan.Plan
	planned  bool
	feedback string
}

// Run handles one user turn. It never returns an error: every failure ends
// in a readable reply, and the browser indicator is cleared exactly once on
// every exit path.
func (o *Orchestrator) Run(ctx context.Context, input string, history []llm.ChatMessage, onChunk stream.ChunkFunc) (out Outcome) {
	t := &turn{o: o}

	var hideOnce sync.Once
	indicatorOn := false
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] recovered: %v", r)
			out = t.fail(fmt.Errorf("panic: %v", r))
		}
		if indicatorOn {
			hideOnce.Do(func() {
				if err := o.indicator.Hide(context.WithoutCancel(ctx)); err != nil {
					log.Printf("[orchestrator] failed to hide indicator: %v", err)
				}
			})
		}
		observability.SetStatus(observability.RoleIdle, "")
	}()

	decision, err := o.planner.Plan(ctx, input, history, o.mode)
	if err != nil {
		return t.fail(err)
	}
	if decision.Direct {
		return Outcome{Reply: decision.Message}
	}

	t.plan, t.planned = decision.Plan, true
	if t.plan, err = t.plan.Transition(plan.StatusExecuting); err != nil {
		return t.fail(err)
	}
	o.logger.LogPlan(t.plan.ID, t.plan.Title, string(t.plan.Status), len(t.plan.Steps))
	log.Printf("[orchestrator] plan %q with %d steps", t.plan.Title, len(t.plan.Steps))

	if t.plan.RequiresBrowser && o.indicator != nil {
		if err := o.indicator.Show(ctx); err != nil {
			log.Printf("[orchestrator] failed to show indicator: %v", err)
		} else {
			indicatorOn = true
		}
	}

	return t.loop(ctx, onChunk)
}

func (t *turn) loop(ctx context.Context, onChunk stream.ChunkFunc) Outcome {
	o := t.o

	for iter := 1; iter <= o.maxIterations; iter++ {
		// The current step is the first one in order that is not done. A
		// patch may reorder steps, so it is looked up on every iteration.
		cursor := t.plan.Current()
		if cursor < 0 {
			return t.finish()
		}
		step := t.plan.Steps[cursor]

		if err := t.start(step.ID); err != nil {
			return t.fail(err)
		}
		step = t.plan.Steps[cursor]
		o.logger.LogStep(t.plan.ID, step.ID, string(step.Status), iter)
		log.Printf("[orchestrator] iteration %d, step %s: %s", iter, step.ID, step.Title)

		act, err := o.executor.Next(ctx, t.plan, step, t.feedback, o.mode)
		if err != nil {
			return t.fail(err)
		}
		if act.Call == nil {
			return t.pause(step, act.Message)
		}

		result := o.dispatcher.Dispatch(ctx, *act.Call, o.mode)
		t.plan, err = t.plan.AppendHistory(plan.HistoryEntry{
			ID:        uuid.NewString(),
			ToolCall:  *act.Call,
			Reason:    act.Reason,
			Result:    result,
			Timestamp: time.Now(),
			StepID:    step.ID,
		})
		if err != nil {
			return t.fail(err)
		}
		if result.Success {
			t.feedback = ""
		}

		val, err := o.validator.Validate(ctx, t.plan, step, onChunk)
		if err != nil {
			return t.fail(err)
		}
		t.plan = plan.ApplyPatch(t.plan, val.Patch)
		if val.Feedback != "" {
			t.feedback = val.Feedback
		}

		switch val.Status {
		case agent.PlanCompleted:
			return t.complete(step.ID, val.FinalMessage)
		case agent.StepCompleted:
			t.markDone(step.ID)
			if t.plan.Current() < 0 {
				return t.finish()
			}
		}

		if t.plan.Status.Terminal() {
			return t.stoppedByPatch()
		}
	}

	return t.exhausted()
}

// start marks a step in progress, moving any other in-progress step back to
// pending first.
func (t *turn) start(id string) error {
	if other := t.plan.InProgress(); other != "" && other != id {
		p, err := t.plan.SetStepStatus(other, plan.StepPending)
		if err != nil {
			return err
		}
		t.plan = p
	}
	p, err := t.plan.SetStepStatus(id, plan.StepInProgress)
	if err != nil {
		return err
	}
	t.plan = p
	return nil
}

func (t *turn) markDone(id string) {
	p, err := t.plan.SetStepStatus(id, plan.StepDone)
	if err != nil && !errors.Is(err, plan.ErrStepDone) {
		log.Printf("[orchestrator] failed to complete step %s: %v", id, err)
		return
	}
	t.plan = p
}

func (t *turn) transition(to plan.Status) {
	if t.plan.Status == to {
		return
	}
	p, err := t.plan.Transition(to)
	if err != nil {
		log.Printf("[orchestrator] %v", err)
		return
	}
	t.plan = p
	t.o.logger.LogPlan(p.ID, p.Title, string(p.Status), len(p.Steps))
}

func (t *turn) outcome(reply string) Outcome {
	if !t.planned {
		return Outcome{Reply: reply}
	}
	snapshot := t.plan.Clone()
	return Outcome{Reply: reply, Plan: &snapshot}
}

func (t *turn) complete(stepID, final string) Outcome {
	t.markDone(stepID)
	t.transition(plan.StatusCompleted)
	if final == "" {
		final = t.summary()
	}
	return t.outcome(final)
}

// finish completes a plan whose steps all ran without an explicit
// plan_completed verdict.
func (t *turn) finish() Outcome {
	t.transition(plan.StatusCompleted)
	if t.feedback != "" {
		return t.outcome(t.feedback)
	}
	return t.outcome(t.summary())
}

func (t *turn) summary() string {
	done, total := t.plan.Progress()
	return fmt.Sprintf("Finished %q: %d of %d steps done.", t.plan.Title, done, total)
}

func (t *turn) pause(step plan.Step, why string) Outcome {
	t.transition(plan.StatusPaused)
	log.Printf("[orchestrator] paused at %s: %s", step.ID, why)
	return t.outcome(fmt.Sprintf("I paused the plan %q at step %q because I could not find a tool to continue: %s",
		t.plan.Title, step.Title, why))
}

func (t *turn) stoppedByPatch() Outcome {
	switch t.plan.Status {
	case plan.StatusCompleted:
		return t.finish()
	case plan.StatusPaused:
		return t.outcome(fmt.Sprintf("I paused the plan %q. %s", t.plan.Title, t.feedback))
	}
	return t.outcome(fmt.Sprintf("The plan %q could not be completed. %s", t.plan.Title, t.feedback))
}

func (t *turn) exhausted() Outcome {
	t.transition(plan.StatusError)
	done, total := t.plan.Progress()
	return t.outcome(fmt.Sprintf("Maximum steps reached (%d) while working on %q. %d of %d steps were completed.",
		t.o.maxIterations, t.plan.Title, done, total))
}

func (t *turn) fail(err error) Outcome {
	log.Printf("[orchestrator] turn failed: %v", err)
	if t.planned && t.plan.Status == plan.StatusExecuting {
		t.transition(plan.StatusError)
	}
	return t.outcome(apology)
}
