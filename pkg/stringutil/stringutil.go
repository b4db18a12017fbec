// Package stringutil provides helpers for rendering model output and prompt
// text on a single terminal line.
package stringutil

import "strings"

// Snippet collapses every whitespace run in s to a single space and
// shortens the result to at most maxRunes runes, ending in "..." when
// truncated. With maxRunes of 3 or less the text is cut without an
// ellipsis.
func Snippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(r[:maxRunes])
	}
	return strings.TrimRight(string(r[:maxRunes-3]), " ") + "..."
}
