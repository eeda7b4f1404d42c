package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tmc/langchaingo/llms"
)

// LangChainClient adapts a langchaingo model to the chunk-stream contract.
// Text deltas are forwarded as they arrive; tool calls are emitted from the
// final response as complete fragments.
type LangChainClient struct {
	Model  llms.Model
	Buffer int
}

func NewLangChainClient(model llms.Model) *LangChainClient {
	return &LangChainClient{Model: model, Buffer: 64}
}

type langChainStream struct {
	chunks chan Chunk
	err    error
}

func (s *langChainStream) Recv(ctx context.Context) (Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return Chunk{}, s.err
			}
			return Chunk{}, io.EOF
		}
		return c, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// send delivers c unless ctx ends first, so a reader that gave up never
// leaves the producer blocked.
func (s *langChainStream) send(ctx context.Context, c Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *LangChainClient) Stream(ctx context.Context, req Request) (Stream, error) {
	if c.Model == nil {
		return nil, errors.New("no model configured")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	s := &langChainStream{chunks: make(chan Chunk, c.Buffer)}
	streamed := false

	opts := []llms.CallOption{
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 || isToolCallPayload(chunk) {
				return nil
			}
			streamed = true
			if !s.send(ctx, TextChunk(string(chunk))) {
				return ctx.Err()
			}
			return nil
		}),
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangChainTools(req.Tools)))
		if req.ToolChoice != "" {
			opts = append(opts, llms.WithToolChoice(string(req.ToolChoice)))
		}
	}

	messages := toMessageContent(req.Messages)

	go func() {
		defer close(s.chunks)

		resp, err := c.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			s.err = fmt.Errorf("model call failed: %w", err)
			return
		}
		if resp == nil || len(resp.Choices) == 0 {
			return
		}

		choice := resp.Choices[0]
		if !streamed && choice.Content != "" {
			if !s.send(ctx, TextChunk(choice.Content)) {
				return
			}
		}
		for i, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if !s.send(ctx, ToolCallChunk(i, tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)) {
				return
			}
		}
	}()

	return s, nil
}

// isToolCallPayload reports whether a streamed chunk is the JSON tool-call
// fragment some providers push through the streaming callback.
func isToolCallPayload(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) == 0 || trimmed[0] != '[' || !json.Valid(trimmed) {
		return false
	}
	var calls []map[string]any
	if err := json.Unmarshal(trimmed, &calls); err != nil || len(calls) == 0 {
		return false
	}
	_, hasFunction := calls[0]["function"]
	return hasFunction
}

func toLangChainTools(defs []ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		typ := d.Type
		if typ == "" {
			typ = "function"
		}
		out = append(out, llms.Tool{
			Type: typ,
			Function: &llms.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}

func toMessageContent(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.MessageContent{
				Role:  llms.ChatMessageTypeSystem,
				Parts: []llms.ContentPart{llms.TextPart(m.Content)},
			})
		case RoleAssistant:
			var parts []llms.ContentPart
			if m.Content != "" {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.ToolCallID,
						Name:       m.Name,
						Content:    m.Content,
					},
				},
			})
		default:
			out = append(out, llms.MessageContent{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart(m.Content)},
			})
		}
	}
	return out
}
