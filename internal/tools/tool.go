package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rahul/tabpilot/internal/governance"
	"github.com/rahul/tabpilot/internal/llm"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// ReadOnlyTool is implemented by tools that only read or analyse. Those are
// the tools allowed in restricted mode.
type ReadOnlyTool interface {
	ReadOnly() bool
}

// IsReadOnly reports whether t declares itself read-only.
func IsReadOnly(t Tool) bool {
	ro, ok := t.(ReadOnlyTool)
	return ok && ro.ReadOnly()
}

// Registry manages the set of available tools. Lookups are static: the name
// table is filled at startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds t. Registering a name twice replaces the tool in place.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ReadOnlyNames returns the names of the read-only tools.
func (r *Registry) ReadOnlyNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, n := range r.order {
		if IsReadOnly(r.tools[n]) {
			names = append(names, n)
		}
	}
	return names
}

// Definitions renders the tools offered to the model. A nil filter offers
// every tool.
func (r *Registry) Definitions(filter func(Tool) bool) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []llm.ToolDefinition
	for _, n := range r.order {
		t := r.tools[n]
		if filter != nil && !filter(t) {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  withExplainability(t.Parameters()),
			},
		})
	}
	return defs
}

// ForMode returns the filter matching what mode may run.
func ForMode(mode governance.Mode) func(Tool) bool {
	if mode == governance.ModeUnrestricted {
		return nil
	}
	return IsReadOnly
}

// RestrictedPolicy builds a policy engine whose restricted allow-list is the
// registry's read-only tools.
func RestrictedPolicy(r *Registry) *governance.DefaultPolicyEngine {
	e := governance.NewDefaultPolicyEngine()
	e.AllowRestricted(r.ReadOnlyNames()...)
	return e
}

// withExplainability adds the required reason and userDescription fields to a
// tool schema without touching the original map.
func withExplainability(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+2)
	for k, v := range schema {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}

	props := map[string]any{}
	if p, ok := schema["properties"].(map[string]any); ok {
		for k, v := range p {
			props[k] = v
		}
	}
	props["reason"] = map[string]any{
		"type":        "string",
		"description": "Why this tool is being called, for the audit trail",
	}
	props["userDescription"] = map[string]any{
		"type":        "string",
		"description": "A short description of the action shown to the user",
	}
	out["properties"] = props

	var required []string
	switch req := schema["required"].(type) {
	case []string:
		required = append(required, req...)
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	out["required"] = append(required, "reason", "userDescription")
	return out
}

// decodeArgs unmarshals a tool's JSON input.
func decodeArgs(input string, v any) error {
	if input == "" {
		input = "{}"
	}
	if err := json.Unmarshal([]byte(input), v); err != nil {
		return fmt.Errorf("invalid input: %v", err)
	}
	return nil
}

func encode(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
