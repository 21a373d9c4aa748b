package platform

import (
	"strings"
	"unicode/utf8"
)

// HashtagLine renders tags as "#tag" tokens separated by spaces, stripping
// inner whitespace. Empty tags are skipped. Deterministic: tag order is
// preserved as authored.
func HashtagLine(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(t), "")
		if t == "" {
			continue
		}
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}

// ComposeText joins an optional title and the body with a blank line.
func ComposeText(title, body string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return body
	}
	return title + "\n\n" + body
}

// Truncate cuts s to at most n runes, never splitting a multi-byte
// character. Platform limits count characters, not bytes. n <= 0 means no
// limit.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
