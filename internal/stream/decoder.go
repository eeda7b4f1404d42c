// Package stream reconstructs text and tool calls from an incremental model
// response.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rahul/tabpilot/internal/llm"
)

// ChunkFunc is notified synchronously for every text delta. first is true
// only for the first text delta of the response.
type ChunkFunc func(delta, full string, first bool)

// Result is the reconstructed model response.
type Result struct {
	FullResponse     string
	ToolCalls        []llm.ToolCall
	ToolDescriptions []string
}

// Complete is a tool call whose argument string has been parsed. Err is set
// when the arguments were not valid JSON.
type Complete struct {
	Call llm.ToolCall
	Args map[string]any
	Err  error
}

// accumulating holds a tool call while its argument fragments arrive. The
// argument string is never parsed before finalize.
type accumulating struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

func (a *accumulating) finalize() Complete {
	call := llm.ToolCall{
		ID:       a.id,
		Type:     "function",
		Function: llm.FunctionCall{Name: a.name, Arguments: a.args.String()},
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return Complete{Call: call, Err: err}
	}
	return Complete{Call: call, Args: args}
}

// Decoder accumulates chunks. The zero value is not usable; use NewDecoder.
type Decoder struct {
	onChunk ChunkFunc
	full    strings.Builder
	calls   []*accumulating
	byID    map[string]*accumulating
	sawText bool
}

func NewDecoder(onChunk ChunkFunc) *Decoder {
	return &Decoder{onChunk: onChunk, byID: make(map[string]*accumulating)}
}

// Add applies one chunk.
func (d *Decoder) Add(chunk llm.Chunk) {
	delta := chunk.Delta()

	if delta.Content != "" {
		d.full.WriteString(delta.Content)
		first := !d.sawText
		d.sawText = true
		if d.onChunk != nil {
			d.onChunk(delta.Content, d.full.String(), first)
		}
	}

	for _, tc := range delta.ToolCalls {
		acc := d.match(tc)
		if acc == nil {
			acc = &accumulating{index: tc.Index, id: tc.ID, name: tc.Function.Name}
			d.calls = append(d.calls, acc)
			if tc.ID != "" {
				d.byID[tc.ID] = acc
			}
			acc.args.WriteString(tc.Function.Arguments)
			continue
		}
		if acc.name == "" {
			acc.name = tc.Function.Name
		}
		acc.args.WriteString(tc.Function.Arguments)
	}
}

// match finds the accumulator a fragment belongs to: by id when present,
// otherwise by index, otherwise the most recent call.
func (d *Decoder) match(tc llm.ToolCallDelta) *accumulating {
	if tc.ID != "" {
		return d.byID[tc.ID]
	}
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].index == tc.Index {
			return d.calls[i]
		}
	}
	if len(d.calls) > 0 {
		return d.calls[len(d.calls)-1]
	}
	return nil
}

// Finalize parses every accumulated call.
func (d *Decoder) Finalize() []Complete {
	out := make([]Complete, 0, len(d.calls))
	for _, acc := range d.calls {
		out = append(out, acc.finalize())
	}
	return out
}

// Result builds the decoded response. Calls whose arguments do not parse or
// carry no userDescription contribute no description.
func (d *Decoder) Result() *Result {
	res := &Result{FullResponse: d.full.String()}
	for _, c := range d.Finalize() {
		res.ToolCalls = append(res.ToolCalls, c.Call)
		if c.Err != nil {
			continue
		}
		if desc, ok := c.Args["userDescription"].(string); ok && desc != "" {
			res.ToolDescriptions = append(res.ToolDescriptions, desc)
		}
	}
	return res
}

// Decode consumes s until it ends. Malformed chunk data never fails the
// decode; only a transport error from s does.
func Decode(ctx context.Context, s llm.Stream, onChunk ChunkFunc) (*Result, error) {
	d := NewDecoder(onChunk)
	for {
		chunk, err := s.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return d.Result(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("stream receive: %w", err)
		}
		d.Add(chunk)
	}
}
