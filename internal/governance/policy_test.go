package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	engine.AllowRestricted("search_web", "list_tabs")
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want Effect
	}{
		{"read tool in restricted mode", Request{Tool: "search_web", Mode: ModeRestricted}, EffectAllow},
		{"mutating tool in restricted mode", Request{Tool: "open_tab", Mode: ModeRestricted}, EffectDeny},
		{"empty mode is restricted", Request{Tool: "open_tab"}, EffectDeny},
		{"mutating tool in unrestricted mode", Request{Tool: "open_tab", Mode: ModeUnrestricted}, EffectAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(ctx, tt.req)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if res.Effect != tt.want {
				t.Errorf("Expected %s, got %s (%s)", tt.want, res.Effect, res.Reason)
			}
		})
	}
}

func TestDefaultPolicyEngine_DenyRulesApplyInEveryMode(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	engine.AllowRestricted("list_tabs")
	engine.DenyTool("list_tabs")
	if err := engine.DenyArguments(`chrome://settings`); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, _ := engine.Evaluate(ctx, Request{Tool: "list_tabs", Mode: ModeUnrestricted})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for denied tool, got %s", res.Effect)
	}

	res, _ = engine.Evaluate(ctx, Request{Tool: "open_tab", Arguments: `{"url":"chrome://settings"}`, Mode: ModeUnrestricted})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for denied arguments, got %s", res.Effect)
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("Unrestricted") != ModeUnrestricted {
		t.Error("expected unrestricted")
	}
	if ParseMode("") != ModeRestricted || ParseMode("yolo") != ModeRestricted {
		t.Error("expected restricted fallback")
	}
}
