package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher runs a web search and returns a text digest of the results.
type Searcher interface {
	Call(ctx context.Context, query string) (string, error)
}

// NewDuckDuckGo returns the default searcher.
func NewDuckDuckGo() (Searcher, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return ddg, nil
}

type SearchTool struct {
	client Searcher
}

func NewSearchTool(client Searcher) *SearchTool {
	return &SearchTool{client: client}
}

func (s *SearchTool) Name() string {
	return "search_web"
}

func (s *SearchTool) Description() string {
	return "Search the web using DuckDuckGo for real-time information."
}

func (s *SearchTool) ReadOnly() bool { return true }

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
