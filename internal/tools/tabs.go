package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/tabpilot/internal/host"
)

// Host delivers actions to the browser host.
type Host interface {
	Send(ctx context.Context, req host.Request) (host.Response, error)
}

type tabInfo struct {
	ID     string
	Title  string
	URL    string
	Active bool
}

func listTabs(ctx context.Context, h Host) ([]tabInfo, error) {
	resp, err := h.Send(ctx, host.NewRequest(host.ActionListTabs, nil))
	if err != nil {
		return nil, err
	}
	raw, _ := resp.Payload["tabs"].([]any)
	tabs := make([]tabInfo, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := tabInfo{}
		t.ID, _ = m["id"].(string)
		t.Title, _ = m["title"].(string)
		t.URL, _ = m["url"].(string)
		t.Active, _ = m["active"].(bool)
		tabs = append(tabs, t)
	}
	return tabs, nil
}

func formatTabs(tabs []tabInfo) string {
	if len(tabs) == 0 {
		return "No tabs found."
	}
	var sb strings.Builder
	for _, t := range tabs {
		marker := " "
		if t.Active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s [%s] %s - %s\n", marker, t.ID, t.Title, t.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}

type ListTabsTool struct {
	host Host
}

func NewListTabsTool(h Host) *ListTabsTool {
	return &ListTabsTool{host: h}
}

func (t *ListTabsTool) Name() string   { return "list_tabs" }
func (t *ListTabsTool) ReadOnly() bool { return true }

func (t *ListTabsTool) Description() string {
	return "List the open browser tabs with their ids, titles and URLs. The active tab is marked with '*'."
}

func (t *ListTabsTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ListTabsTool) Execute(ctx context.Context, input string) (string, error) {
	tabs, err := listTabs(ctx, t.host)
	if err != nil {
		return "", fmt.Errorf("failed to list tabs: %w", err)
	}
	return formatTabs(tabs), nil
}

type SearchTabsTool struct {
	host Host
}

func NewSearchTabsTool(h Host) *SearchTabsTool {
	return &SearchTabsTool{host: h}
}

func (t *SearchTabsTool) Name() string   { return "search_tabs" }
func (t *SearchTabsTool) ReadOnly() bool { return true }

func (t *SearchTabsTool) Description() string {
	return "Find open tabs whose title or URL contains the query (case-insensitive)."
}

func (t *SearchTabsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to look for in tab titles and URLs",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchTabsTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	q := strings.ToLower(strings.TrimSpace(args.Query))
	if q == "" {
		return "", fmt.Errorf("query is required")
	}

	tabs, err := listTabs(ctx, t.host)
	if err != nil {
		return "", fmt.Errorf("failed to list tabs: %w", err)
	}
	var matches []tabInfo
	for _, tab := range tabs {
		if strings.Contains(strings.ToLower(tab.Title), q) || strings.Contains(strings.ToLower(tab.URL), q) {
			matches = append(matches, tab)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No tabs match %q.", args.Query), nil
	}
	return formatTabs(matches), nil
}

type OpenTabTool struct {
	host Host
}

func NewOpenTabTool(h Host) *OpenTabTool {
	return &OpenTabTool{host: h}
}

func (t *OpenTabTool) Name() string { return "open_tab" }

func (t *OpenTabTool) Description() string {
	return "Open a URL in a new browser tab and make it the active tab."
}

func (t *OpenTabTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL to open (e.g., https://example.com)",
			},
		},
		"required": []string{"url"},
	}
}

func (t *OpenTabTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	resp, err := t.host.Send(ctx, host.NewRequest(host.ActionOpenTab, map[string]any{"url": args.URL}))
	if err != nil {
		return "", fmt.Errorf("failed to open tab: %w", err)
	}
	id, _ := resp.Payload["tab_id"].(string)
	return fmt.Sprintf("Opened %s in tab %s", args.URL, id), nil
}

type CloseTabTool struct {
	host Host
}

func NewCloseTabTool(h Host) *CloseTabTool {
	return &CloseTabTool{host: h}
}

func (t *CloseTabTool) Name() string { return "close_tab" }

func (t *CloseTabTool) Description() string {
	return "Close a browser tab by id. Use list_tabs or search_tabs to find the id."
}

func (t *CloseTabTool) Parameters() map[string]any {
	return tabIDSchema("The id of the tab to close")
}

func (t *CloseTabTool) Execute(ctx context.Context, input string) (string, error) {
	id, err := tabIDArg(input)
	if err != nil {
		return "", err
	}
	if _, err := t.host.Send(ctx, host.NewRequest(host.ActionCloseTab, map[string]any{"tab_id": id})); err != nil {
		return "", fmt.Errorf("failed to close tab: %w", err)
	}
	return fmt.Sprintf("Closed tab %s", id), nil
}

type ActivateTabTool struct {
	host Host
}

func NewActivateTabTool(h Host) *ActivateTabTool {
	return &ActivateTabTool{host: h}
}

func (t *ActivateTabTool) Name() string { return "activate_tab" }

func (t *ActivateTabTool) Description() string {
	return "Switch to a browser tab by id so later page actions apply to it."
}

func (t *ActivateTabTool) Parameters() map[string]any {
	return tabIDSchema("The id of the tab to activate")
}

func (t *ActivateTabTool) Execute(ctx context.Context, input string) (string, error) {
	id, err := tabIDArg(input)
	if err != nil {
		return "", err
	}
	if _, err := t.host.Send(ctx, host.NewRequest(host.ActionActivateTab, map[string]any{"tab_id": id})); err != nil {
		return "", fmt.Errorf("failed to activate tab: %w", err)
	}
	return fmt.Sprintf("Activated tab %s", id), nil
}

type GroupTabsTool struct {
	host Host
}

func NewGroupTabsTool(h Host) *GroupTabsTool {
	return &GroupTabsTool{host: h}
}

func (t *GroupTabsTool) Name() string { return "group_tabs" }

func (t *GroupTabsTool) Description() string {
	return "Put several tabs into a named group."
}

func (t *GroupTabsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "The group label",
			},
			"tab_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ids of the tabs to group",
			},
		},
		"required": []string{"name", "tab_ids"},
	}
}

func (t *GroupTabsTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Name   string   `json:"name"`
		TabIDs []string `json:"tab_ids"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.Name == "" || len(args.TabIDs) == 0 {
		return "", fmt.Errorf("name and tab_ids are required")
	}
	ids := make([]any, len(args.TabIDs))
	for i, id := range args.TabIDs {
		ids[i] = id
	}
	resp, err := t.host.Send(ctx, host.NewRequest(host.ActionGroupTabs, map[string]any{
		"name":    args.Name,
		"tab_ids": ids,
	}))
	if err != nil {
		return "", fmt.Errorf("failed to group tabs: %w", err)
	}
	count, _ := resp.Payload["count"].(float64)
	if n, ok := resp.Payload["count"].(int); ok {
		count = float64(n)
	}
	return fmt.Sprintf("Grouped %d tab(s) as %q", int(count), args.Name), nil
}

func tabIDSchema(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tab_id": map[string]any{
				"type":        "string",
				"description": desc,
			},
		},
		"required": []string{"tab_id"},
	}
}

func tabIDArg(input string) (string, error) {
	var args struct {
		TabID string `json:"tab_id"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.TabID == "" {
		return "", fmt.Errorf("tab_id is required")
	}
	return args.TabID, nil
}
