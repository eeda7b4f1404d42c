package tools

import (
	"regexp"
	"strconv"
)

var timestampPattern = regexp.MustCompile(`\b(?:(\d{1,2}):)?(\d{1,2}):(\d{2})\b`)

// ExtractTimestamp returns the first M:SS, MM:SS or H:MM:SS substring of text
// in seconds. This is a best-effort heuristic: any time-shaped number in the
// text matches, including ones unrelated to a video position.
func ExtractTimestamp(text string) (int, bool) {
	for _, m := range timestampPattern.FindAllStringSubmatch(text, -1) {
		hours := 0
		if m[1] != "" {
			hours, _ = strconv.Atoi(m[1])
		}
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		if seconds > 59 || (m[1] != "" && minutes > 59) {
			continue
		}
		return hours*3600 + minutes*60 + seconds, true
	}
	return 0, false
}
