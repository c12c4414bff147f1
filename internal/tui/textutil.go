package tui

import "strings"

// truncateEnd shortens s to at most limit runes, ending with an ellipsis
// when cut.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// truncateMiddle keeps both ends of s, for slugs and ids where the tail
// carries meaning.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	n := len(r)
	if n <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	keep := limit - 1
	left := keep / 2
	right := keep - left
	return string(r[:left]) + "…" + string(r[n-right:])
}

// singleLine collapses all whitespace runs into single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
