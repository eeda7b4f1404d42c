// Package llm describes the model-call contract shared by the agents: chat
// messages, tool definitions, and the incremental chunk stream a model
// response arrives as.
package llm

import (
	"context"
	"io"
)

// Role is the author of a message sent to the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FunctionCall is the function half of a tool call. Arguments is a JSON
// document once the call is complete.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation requested by the model. ID correlates the
// request with its result.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Message is one entry of the ordered request sent to the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// FunctionDefinition describes a callable tool with a JSON schema.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition is the wire shape of a tool offered to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// ToolChoice is the tool selection policy of a request.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// Request is a single model call.
type Request struct {
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice ToolChoice
}

// FunctionDelta carries a fragment of a streamed function call. Name is
// usually present only on the first fragment.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallDelta is a fragment of a tool call. Providers send the id on the
// first fragment only; later fragments are matched by Index.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Function FunctionDelta `json:"function"`
}

// Delta is the incremental payload of a chunk.
type Delta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// Choice wraps a delta the way chat-completion chunks do.
type Choice struct {
	Delta Delta `json:"delta"`
}

// Chunk is one incremental unit of a streamed model response.
type Chunk struct {
	Choices []Choice `json:"choices"`
}

// Delta returns the first choice's delta, or an empty delta.
func (c Chunk) Delta() Delta {
	if len(c.Choices) == 0 {
		return Delta{}
	}
	return c.Choices[0].Delta
}

// TextChunk builds a chunk carrying only text.
func TextChunk(text string) Chunk {
	return Chunk{Choices: []Choice{{Delta: Delta{Content: text}}}}
}

// ToolCallChunk builds a chunk carrying a single tool-call fragment.
func ToolCallChunk(index int, id, name, args string) Chunk {
	return Chunk{Choices: []Choice{{Delta: Delta{ToolCalls: []ToolCallDelta{{
		Index:    index,
		ID:       id,
		Function: FunctionDelta{Name: name, Arguments: args},
	}}}}}}
}

// Stream yields the chunks of one model response. Recv returns io.EOF after
// the last chunk; any other error is a transport failure.
type Stream interface {
	Recv(ctx context.Context) (Chunk, error)
}

// Client issues streamed model calls.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// StaticStream replays a fixed list of chunks, optionally ending with Err.
type StaticStream struct {
	Chunks []Chunk
	Err    error
	pos    int
}

// NewStaticStream returns a stream over chunks.
func NewStaticStream(chunks ...Chunk) *StaticStream {
	return &StaticStream{Chunks: chunks}
}

func (s *StaticStream) Recv(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pos < len(s.Chunks) {
		c := s.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.Err != nil {
		return Chunk{}, s.Err
	}
	return Chunk{}, io.EOF
}
