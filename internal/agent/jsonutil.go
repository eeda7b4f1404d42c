package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// ExtractObject returns the first balanced {...} substring of content, with
// line comments and trailing commas removed. It returns "" when there is no
// balanced object.
func ExtractObject(content string) string {
	start := strings.IndexByte(content, '{')
	for start >= 0 {
		if end := matchBrace(content, start); end > 0 {
			return cleanJSON(content[start : end+1])
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// decodeObject extracts the first object of content into v. It reports false
// when there is no object or it does not parse.
func decodeObject(content string, v any) bool {
	raw := ExtractObject(content)
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// cleanJSON removes JavaScript-style comments and trailing commas, which
// models commonly produce.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values such as URLs.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
