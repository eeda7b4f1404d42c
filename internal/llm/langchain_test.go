package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	stream   []string
	resp     *llms.ContentResponse
	err      error
	gotMsgs  []llms.MessageContent
	gotTools int
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.gotMsgs = messages
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.gotTools = len(opts.Tools)
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.stream {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(s)); err != nil {
				return nil, err
			}
		}
	}
	return m.resp, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func drain(t *testing.T, s Stream) []Chunk {
	t.Helper()
	var out []Chunk
	for {
		c, err := s.Recv(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, c)
	}
}

func TestLangChainClient_StreamsTextAndToolCalls(t *testing.T) {
	model := &stubModel{
		stream: []string{"Hel", "lo", `[{"id":"c1","function":{"name":"x"}}]`},
		resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content: "Hello",
			ToolCalls: []llms.ToolCall{{
				ID:           "c1",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "list_tabs", Arguments: `{"reason":"r"}`},
			}},
		}}},
	}
	client := NewLangChainClient(model)

	s, err := client.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Tools:    []ToolDefinition{{Type: "function", Function: FunctionDefinition{Name: "list_tabs"}}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	chunks := drain(t, s)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Delta().Content != "Hel" || chunks[1].Delta().Content != "lo" {
		t.Errorf("unexpected text chunks: %+v", chunks[:2])
	}
	tc := chunks[2].Delta().ToolCalls
	if len(tc) != 1 || tc[0].ID != "c1" || tc[0].Function.Name != "list_tabs" {
		t.Errorf("unexpected tool call chunk: %+v", tc)
	}
	if model.gotTools != 1 {
		t.Errorf("expected 1 tool passed to model, got %d", model.gotTools)
	}
	if model.gotMsgs[0].Role != llms.ChatMessageTypeSystem || model.gotMsgs[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("unexpected roles: %v %v", model.gotMsgs[0].Role, model.gotMsgs[1].Role)
	}
}

func TestLangChainClient_EmitsContentWhenNothingStreamed(t *testing.T) {
	model := &stubModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "whole answer"}}}}
	s, err := NewLangChainClient(model).Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err != nil {
		t.Fatal(err)
	}
	chunks := drain(t, s)
	if len(chunks) != 1 || chunks[0].Delta().Content != "whole answer" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestLangChainClient_TransportError(t *testing.T) {
	model := &stubModel{err: errors.New("connection refused")}
	s, err := NewLangChainClient(model).Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Recv(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestToMessageContent_ToolRoundTrip(t *testing.T) {
	msgs := toMessageContent([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Function: FunctionCall{Name: "search_web", Arguments: "{}"}}}},
		{Role: RoleTool, ToolCallID: "a", Name: "search_web", Content: "results"},
	})
	if msgs[0].Role != llms.ChatMessageTypeAI || len(msgs[0].Parts) != 1 {
		t.Fatalf("unexpected assistant message: %+v", msgs[0])
	}
	resp, ok := msgs[1].Parts[0].(llms.ToolCallResponse)
	if !ok || resp.ToolCallID != "a" || resp.Content != "results" {
		t.Fatalf("unexpected tool message: %+v", msgs[1])
	}
}

func TestChatHistory(t *testing.T) {
	msgs := ChatHistory([]ChatMessage{
		{ID: "1", Type: ChatUser, Content: "open my mail"},
		{ID: "2", Type: ChatAI, Content: "done"},
		{ID: "3", Type: ChatAI},
	})
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestLangChainStream_SendGivesUpOnCancel(t *testing.T) {
	s := &langChainStream{chunks: make(chan Chunk)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() { done <- s.send(ctx, TextChunk("late")) }()

	select {
	case ok := <-done:
		if ok {
			t.Error("nobody reads the stream, send must not succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("send blocked after the context was cancelled")
	}
}

func TestLangChainClient_CancelledReaderReleasesProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []llms.ToolCall
	for i := 0; i < 4; i++ {
		calls = append(calls, llms.ToolCall{ID: "c", FunctionCall: &llms.FunctionCall{Name: "list_tabs", Arguments: "{}"}})
	}
	model := &cancellingModel{cancel: cancel, resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: calls}}}}
	client := &LangChainClient{Model: model, Buffer: 1}

	s, err := client.Stream(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	ls := s.(*langChainStream)

	// The producer fills the one-slot buffer and must then stop instead of
	// waiting for a reader that is gone.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ls.chunks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("producer did not close the stream after cancellation")
		}
	}
}

type cancellingModel struct {
	cancel context.CancelFunc
	resp   *llms.ContentResponse
}

func (m *cancellingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.cancel()
	return m.resp, nil
}

func (m *cancellingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}
