package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/tabpilot/internal/host"
)

// VideoSearchTool searches for videos by restricting a web search to
// YouTube.
type VideoSearchTool struct {
	client Searcher
}

func NewVideoSearchTool(client Searcher) *VideoSearchTool {
	return &VideoSearchTool{client: client}
}

func (t *VideoSearchTool) Name() string   { return "video_search" }
func (t *VideoSearchTool) ReadOnly() bool { return true }

func (t *VideoSearchTool) Description() string {
	return "Search for videos on YouTube. Returns titles, links and snippets."
}

func (t *VideoSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What the video should be about",
			},
		},
		"required": []string{"query"},
	}
}

func (t *VideoSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	res, err := t.client.Call(ctx, "site:youtube.com "+args.Query)
	if err != nil {
		return "", fmt.Errorf("video search failed: %w", err)
	}
	return res, nil
}

// SeekVideoTool moves the video in the active tab to a position. The position
// is either given in seconds or read from free text with ExtractTimestamp.
type SeekVideoTool struct {
	host Host
}

func NewSeekVideoTool(h Host) *SeekVideoTool {
	return &SeekVideoTool{host: h}
}

func (t *SeekVideoTool) Name() string { return "seek_video" }

func (t *SeekVideoTool) Description() string {
	return "Jump the video playing in the active tab to a position, given in seconds or as a timestamp like 4:35."
}

func (t *SeekVideoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        "number",
				"description": "Position in seconds",
			},
			"timestamp": map[string]any{
				"type":        "string",
				"description": "Position as text, e.g. '1:02:03' or 'at 4:35'",
			},
		},
	}
}

func (t *SeekVideoTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Seconds   *float64 `json:"seconds"`
		Timestamp string   `json:"timestamp"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}

	var seconds float64
	switch {
	case args.Seconds != nil:
		seconds = *args.Seconds
	case args.Timestamp != "":
		s, ok := ExtractTimestamp(args.Timestamp)
		if !ok {
			return "", fmt.Errorf("no timestamp found in %q", args.Timestamp)
		}
		seconds = float64(s)
	default:
		return "", fmt.Errorf("seconds or timestamp is required")
	}
	if seconds < 0 {
		return "", fmt.Errorf("position must not be negative")
	}

	if _, err := t.host.Send(ctx, host.NewRequest(host.ActionSeekVideo, map[string]any{"seconds": seconds})); err != nil {
		return "", fmt.Errorf("seek failed: %w", err)
	}
	return fmt.Sprintf("Moved the video to %s", formatPosition(int(seconds))), nil
}

func formatPosition(total int) string {
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
