package tools

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/observability"
)

// MaxOutputLength bounds the content of a single tool result.
const MaxOutputLength = 20000

// Result is the normalized outcome of one tool call. Content is always set,
// also on failure.
type Result struct {
	ToolCallID   string `json:"tool_call_id"`
	FunctionName string `json:"functionName"`
	Content      string `json:"content"`
	Success      bool   `json:"success"`
}

// Dispatcher resolves tool calls against a registry and runs them under a
// permission mode. It never returns errors: every failure is a Result with
// Success=false.
type Dispatcher struct {
	registry *Registry
	policy   governance.PolicyEngine
	logger   *observability.Logger
}

// NewDispatcher returns a dispatcher. A nil policy restricts to the
// registry's read-only tools.
func NewDispatcher(registry *Registry, policy governance.PolicyEngine, logger *observability.Logger) *Dispatcher {
	if policy == nil {
		policy = RestrictedPolicy(registry)
	}
	return &Dispatcher{registry: registry, policy: policy, logger: logger}
}

// Registry returns the tools the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes one call.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall, mode governance.Mode) (res Result) {
	name := call.Function.Name
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[tools] %s panicked: %v", name, r)
			res = failed(call, fmt.Sprintf("tool %s failed: %v", name, r))
		}
		d.logger.LogToolResult(call.ID, name, res.Success, res.Content)
	}()

	d.logger.LogToolCall(call.ID, name, call.Function.Arguments)

	tool := d.registry.Get(name)
	if tool == nil {
		return failed(call, fmt.Sprintf("tool not recognized: %s", name))
	}

	decision, err := d.policy.Evaluate(ctx, governance.Request{
		Tool:      name,
		Arguments: call.Function.Arguments,
		Mode:      mode,
	})
	if err != nil {
		return failed(call, fmt.Sprintf("policy check failed: %v", err))
	}
	d.logger.LogPolicyCheck(name, string(mode), string(decision.Effect), decision.Reason)
	if decision.Effect == governance.EffectDeny {
		return failed(call, fmt.Sprintf("tool %s is not permitted: %s", name, decision.Reason))
	}

	out, err := tool.Execute(ctx, call.Function.Arguments)
	if err != nil {
		return failed(call, err.Error())
	}
	if out == "" {
		out = "(no output)"
	}
	return Result{
		ToolCallID:   call.ID,
		FunctionName: name,
		Content:      truncate(out),
		Success:      true,
	}
}

// DispatchMany deduplicates calls by id, first occurrence winning, then runs
// the remaining calls concurrently. Results are positional to the
// deduplicated input. One failing call does not cancel the others.
func (d *Dispatcher) DispatchMany(ctx context.Context, calls []llm.ToolCall, mode governance.Mode) []Result {
	unique := Dedup(calls)
	results := make([]Result, len(unique))

	var g errgroup.Group
	for i, call := range unique {
		g.Go(func() error {
			results[i] = d.Dispatch(ctx, call, mode)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Dedup drops calls whose id was already seen. Calls without an id are kept.
func Dedup(calls []llm.ToolCall) []llm.ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]llm.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.ID != "" {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
		}
		out = append(out, c)
	}
	return out
}

func failed(call llm.ToolCall, msg string) Result {
	return Result{
		ToolCallID:   call.ID,
		FunctionName: call.Function.Name,
		Content:      truncate(msg),
		Success:      false,
	}
}

func truncate(s string) string {
	if len(s) <= MaxOutputLength {
		return s
	}
	cut := MaxOutputLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (output truncated) ..."
}
