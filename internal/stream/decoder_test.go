package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/tabpilot/internal/llm"
)

func TestDecode_ConcatenatesTextAndNotifies(t *testing.T) {
	parts := []string{"The ", "quick ", "brown ", "fox"}
	var chunks []llm.Chunk
	for _, p := range parts {
		chunks = append(chunks, llm.TextChunk(p))
	}

	var firsts int
	var seen []string
	res, err := Decode(context.Background(), llm.NewStaticStream(chunks...), func(delta, full string, first bool) {
		if first {
			firsts++
		}
		seen = append(seen, full)
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.FullResponse != strings.Join(parts, "") {
		t.Errorf("unexpected full response %q", res.FullResponse)
	}
	if firsts != 1 {
		t.Errorf("expected first flag exactly once, got %d", firsts)
	}
	for i, full := range seen {
		want := strings.Join(parts[:i+1], "")
		if full != want {
			t.Errorf("callback %d: got %q, want prefix %q", i, full, want)
		}
	}
}

func TestDecode_AccumulatesToolCallFragments(t *testing.T) {
	s := llm.NewStaticStream(
		llm.TextChunk("Let me check."),
		llm.ToolCallChunk(0, "call_1", "search_tabs", `{"query":"ma`),
		llm.ToolCallChunk(0, "", "", `il","reason":"find","userDescription":"Searching tabs"}`),
		llm.ToolCallChunk(1, "call_2", "list_tabs", `{"reason":"x"}`),
		llm.ToolCallChunk(2, "call_3", "open_tab", `{"url":`),
	)

	res, err := Decode(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.ToolCalls) != 3 {
		t.Fatalf("expected 3 tool calls, got %d", len(res.ToolCalls))
	}
	first := res.ToolCalls[0]
	if first.ID != "call_1" || first.Function.Name != "search_tabs" {
		t.Errorf("unexpected first call: %+v", first)
	}
	if first.Function.Arguments != `{"query":"mail","reason":"find","userDescription":"Searching tabs"}` {
		t.Errorf("unexpected arguments: %s", first.Function.Arguments)
	}
	if len(res.ToolDescriptions) != 1 || res.ToolDescriptions[0] != "Searching tabs" {
		t.Errorf("unexpected descriptions: %v", res.ToolDescriptions)
	}
}

func TestDecode_SameIDAppends(t *testing.T) {
	s := llm.NewStaticStream(
		llm.ToolCallChunk(0, "a", "list_tabs", `{"reason":`),
		llm.ToolCallChunk(0, "a", "", `"r"}`),
	)
	res, err := Decode(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Function.Arguments != `{"reason":"r"}` {
		t.Fatalf("unexpected calls: %+v", res.ToolCalls)
	}
}

func TestDecode_TransportError(t *testing.T) {
	s := llm.NewStaticStream(llm.TextChunk("partial"))
	s.Err = errors.New("connection reset")

	if _, err := Decode(context.Background(), s, nil); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestDecode_EmptyChunksAreIgnored(t *testing.T) {
	s := llm.NewStaticStream(llm.Chunk{}, llm.TextChunk(""), llm.TextChunk("ok"))
	called := 0
	res, err := Decode(context.Background(), s, func(string, string, bool) { called++ })
	if err != nil {
		t.Fatal(err)
	}
	if res.FullResponse != "ok" || called != 1 {
		t.Fatalf("got %q with %d callbacks", res.FullResponse, called)
	}
}

func TestFinalize_ReportsParseErrors(t *testing.T) {
	d := NewDecoder(nil)
	d.Add(llm.ToolCallChunk(0, "x", "click_element", `{"selector": "#go"`))
	out := d.Finalize()
	if len(out) != 1 || out[0].Err == nil {
		t.Fatalf("expected parse error, got %+v", out)
	}
}
