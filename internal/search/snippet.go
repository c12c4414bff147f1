package search

import (
	"strings"
	"unicode"
)

// Snippet returns the window of text that contains the most query terms,
// cut to roughly maxLength characters. Without usable terms the start of
// the text is returned.
func Snippet(text, query string, maxLength int) string {
	if text == "" {
		return ""
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	terms := tokenize(query)
	windowSize := maxLength / 8 // Approximate words in snippet
	if len(terms) == 0 || windowSize == 0 || windowSize >= len(words) {
		return truncate(strings.Join(words, " "), maxLength)
	}

	bestScore := 0
	bestStart := 0
	for i := 0; i <= len(words)-windowSize; i++ {
		windowText := strings.ToLower(strings.Join(words[i:i+windowSize], " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(windowText, term) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	snippet := strings.Join(words[bestStart:bestStart+windowSize], " ")
	if bestStart > 0 {
		snippet = "…" + snippet
	}
	return truncate(snippet, maxLength)
}

// tokenize breaks text into lowercased searchable terms
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 { // Skip single chars
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if current.Len() > 1 {
		terms = append(terms, current.String())
	}

	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}
