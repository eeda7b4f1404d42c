package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/tabpilot/internal/host"
)

const pageContentLimit = 15000

// ReadPageTool extracts the readable text of a page. Without a URL it reads
// the active tab through the host; with a URL it fetches the page directly.
type ReadPageTool struct {
	host      Host
	client    *http.Client
	UserAgent string
}

func NewReadPageTool(h Host) *ReadPageTool {
	return &ReadPageTool{
		host:      h,
		client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
}

func (t *ReadPageTool) Name() string   { return "read_page" }
func (t *ReadPageTool) ReadOnly() bool { return true }

func (t *ReadPageTool) Description() string {
	return "Extract the main content of the active tab, or of a URL, as clean text."
}

func (t *ReadPageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Optional URL to read instead of the active tab",
			},
		},
	}
}

func (t *ReadPageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}

	var (
		body    io.Reader
		pageURL string
	)
	if args.URL != "" {
		html, err := t.fetch(ctx, args.URL)
		if err != nil {
			return "", err
		}
		body, pageURL = strings.NewReader(html), args.URL
	} else {
		if t.host == nil {
			return "", fmt.Errorf("no browser host available, a url is required")
		}
		resp, err := t.host.Send(ctx, host.NewRequest(host.ActionGetContent, nil))
		if err != nil {
			return "", fmt.Errorf("failed to read the active tab: %w", err)
		}
		html, _ := resp.Payload["html"].(string)
		pageURL, _ = resp.Payload["url"].(string)
		body = strings.NewReader(html)
	}

	return Summarize(body, pageURL)
}

func (t *ReadPageTool) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %v", err)
	}
	return string(data), nil
}

// Summarize runs readability over an HTML document and returns a sanitized
// report for the model.
func Summarize(r io.Reader, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %v", err)
	}

	article, err := readability.FromReader(r, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %v", err)
	}

	// Strip any markup readability left behind.
	p := bluemonday.StrictPolicy()
	content := strings.TrimSpace(p.Sanitize(article.TextContent))

	var sb strings.Builder
	fmt.Fprintf(&sb, "TITLE: %s\n", article.Title)
	if pageURL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", pageURL)
	}
	if article.Excerpt != "" {
		fmt.Fprintf(&sb, "EXCERPT: %s\n", article.Excerpt)
	}
	sb.WriteString("\n-- CONTENT --\n")

	if len(content) > pageContentLimit {
		content = content[:pageContentLimit] + "\n... (content truncated) ..."
	}
	sb.WriteString(content)
	return sb.String(), nil
}
