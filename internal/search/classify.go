package search

import (
	"strings"
	"unicode"
)

// Auto-mode alpha presets. Compact identifier-shaped queries lean keyword;
// multi-word lowercase phrases lean semantic.
const (
	alphaKeywordLeaning  = 0.8
	alphaSemanticLeaning = 0.3
)

// classifyQuery picks the keyword weight for mode auto from the query's
// shape alone. Deterministic on purpose: the same query always searches the
// same way.
func classifyQuery(query string) float64 {
	words := strings.Fields(strings.TrimSpace(query))
	switch {
	case len(words) == 1 && identifierLike(words[0]):
		return alphaKeywordLeaning
	case len(words) >= 3 && allLowercasePhrase(words):
		return alphaSemanticLeaning
	default:
		return DefaultAlpha
	}
}

// identifierLike reports whether a single token reads as a code identifier:
// camel humps, underscores, digits, or dotted paths.
func identifierLike(word string) bool {
	hasUpper := false
	for _, r := range word {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case r == '_' || r == '.' || unicode.IsDigit(r):
			return true
		case !unicode.IsLetter(r):
			return false
		}
	}
	// an interior capital is a camel hump; a leading one is just a word
	return hasUpper && !unicode.IsUpper([]rune(word)[0]) || hasUpper && len(splitIdentifier(word)) > 1
}

func allLowercasePhrase(words []string) bool {
	for _, w := range words {
		if strings.ToLower(w) != w {
			return false
		}
	}
	return true
}
