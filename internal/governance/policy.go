package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Mode is the permission mode a tool call runs under.
type Mode string

const (
	// ModeRestricted allows only the read/analysis allow-list.
	ModeRestricted Mode = "restricted"
	// ModeUnrestricted allows every registered tool, including browser-mutating ones.
	ModeUnrestricted Mode = "unrestricted"
)

// ParseMode maps a config value to a Mode. Anything unknown is restricted.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeUnrestricted)) {
		return ModeUnrestricted
	}
	return ModeRestricted
}

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	Mode      Mode
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine applies the restricted allow-list plus deny rules that
// hold in every mode.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	restricted  map[string]bool
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		restricted:  make(map[string]bool),
		DeniedTools: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// AllowRestricted adds tools to the restricted-mode allow-list.
func (e *DefaultPolicyEngine) AllowRestricted(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range names {
		e.restricted[n] = true
	}
}

// RestrictedAllowed reports whether name is on the restricted allow-list.
func (e *DefaultPolicyEngine) RestrictedAllowed(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.restricted[name]
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	if req.Mode != ModeUnrestricted && !e.restricted[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' changes the browser and is not available in restricted mode. Switch to unrestricted mode to allow it.", req.Tool),
		}, nil
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
