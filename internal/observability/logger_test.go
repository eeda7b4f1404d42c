package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesOneJSONEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.LogToolCall("plan-1", "list_tabs", `{"reason":"r"}`)
	l.LogToolResult("plan-1", "list_tabs", true, strings.Repeat("x", 600))
	l.LogLLM("planner", "prompt", "response", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var evt struct {
		Type   EventType      `json:"type"`
		TaskID string         `json:"task_id"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &evt); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if evt.Type != EventTypeToolResult || evt.TaskID != "plan-1" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if content, _ := evt.Data["content"].(string); len(content) != 503 {
		t.Errorf("expected truncated content, got %d chars", len(content))
	}
}

func TestStatus(t *testing.T) {
	SetStatus(RoleValidator, "checking step_1")
	defer SetStatus(RoleIdle, "")

	role, task, _ := GetStatus()
	if role != RoleValidator || task != "checking step_1" {
		t.Fatalf("unexpected status %s %q", role, task)
	}
	if !strings.Contains(StatusLine(), "VALIDATOR") {
		t.Errorf("status line missing role: %s", StatusLine())
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.LogHeartbeat()
}
