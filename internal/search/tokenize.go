package search

import (
	"strings"
	"unicode"
)

// tokenize splits text into lowercase search tokens. Identifiers split on
// case humps and underscores, so "getUserById" and "get_user_by_id" both
// yield [get user by id] plus the whole identifier lowercased, keeping exact
// identifier queries sharp.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range splitWords(text) {
		parts := splitIdentifier(word)
		tokens = append(tokens, parts...)
		if len(parts) > 1 {
			tokens = append(tokens, strings.ToLower(word))
		}
	}
	return tokens
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// splitIdentifier breaks one word on underscores and camel-case boundaries.
// Acronym runs stay together: "HTTPServer" becomes [http server].
func splitIdentifier(word string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = nil
		}
	}

	runes := []rune(word)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && len(cur) > 0 && unicode.IsUpper(cur[len(cur)-1])) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}
