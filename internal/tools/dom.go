package tools

import (
	"context"
	"fmt"

	"github.com/rahul/tabpilot/internal/host"
)

func selectorSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"selector": map[string]any{
			"type":        "string",
			"description": "CSS selector of the target element in the active tab",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"selector"}, required...),
	}
}

type ClickElementTool struct {
	host Host
}

func NewClickElementTool(h Host) *ClickElementTool {
	return &ClickElementTool{host: h}
}

func (t *ClickElementTool) Name() string { return "click_element" }

func (t *ClickElementTool) Description() string {
	return "Click the element matching a CSS selector in the active tab."
}

func (t *ClickElementTool) Parameters() map[string]any {
	return selectorSchema(nil)
}

func (t *ClickElementTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Selector string `json:"selector"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	if _, err := t.host.Send(ctx, host.NewRequest(host.ActionClick, map[string]any{"selector": args.Selector})); err != nil {
		return "", fmt.Errorf("click failed: %w", err)
	}
	return fmt.Sprintf("Clicked element %s", args.Selector), nil
}

type TypeTextTool struct {
	host Host
}

func NewTypeTextTool(h Host) *TypeTextTool {
	return &TypeTextTool{host: h}
}

func (t *TypeTextTool) Name() string { return "type_text" }

func (t *TypeTextTool) Description() string {
	return "Type text into the input element matching a CSS selector in the active tab."
}

func (t *TypeTextTool) Parameters() map[string]any {
	return selectorSchema(map[string]any{
		"text": map[string]any{
			"type":        "string",
			"description": "The text to type",
		},
	}, "text")
}

func (t *TypeTextTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.Selector == "" || args.Text == "" {
		return "", fmt.Errorf("selector and text are required")
	}
	req := host.NewRequest(host.ActionType, map[string]any{"selector": args.Selector, "text": args.Text})
	if _, err := t.host.Send(ctx, req); err != nil {
		return "", fmt.Errorf("typing failed: %w", err)
	}
	return fmt.Sprintf("Typed %d characters into %s", len(args.Text), args.Selector), nil
}
