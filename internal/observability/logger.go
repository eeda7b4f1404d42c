package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeValidation  EventType = "validation"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewWriterLogger logs to w and keeps LLM transcripts out of the filesystem.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(planID, title, status string, steps int) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: planID,
		Data: map[string]any{
			"title":  title,
			"status": status,
			"steps":  steps,
		},
	})
}

func (l *Logger) LogStep(planID, stepID, status string, iteration int) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: planID,
		Data: map[string]any{
			"step_id":   stepID,
			"status":    status,
			"iteration": iteration,
		},
	})
}

func (l *Logger) LogToolCall(taskID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		TaskID: taskID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(taskID, tool string, success bool, content string) {
	if len(content) > 500 {
		content = content[:500] + "..."
	}
	l.Log(Event{
		Type:   EventTypeToolResult,
		TaskID: taskID,
		Data: map[string]any{
			"tool":    tool,
			"success": success,
			"content": content,
		},
	})
}

func (l *Logger) LogPolicyCheck(tool, mode, effect, reason string) {
	l.Log(Event{
		Type: EventTypePolicyCheck,
		Data: map[string]string{
			"tool":   tool,
			"mode":   mode,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogValidation(planID, stepID, status, feedback string) {
	l.Log(Event{
		Type:   EventTypeValidation,
		TaskID: planID,
		Data: map[string]string{
			"step_id":  stepID,
			"status":   status,
			"feedback": feedback,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(role string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		TaskID: role,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
