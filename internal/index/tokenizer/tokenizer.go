// Package tokenizer normalizes text into index terms.
package tokenizer

import (
	"strings"
	"unicode"
)

// stopWords are dropped during tokenization. They carry no discriminating
// power for short study-material queries.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "what": {}, "how": {}, "why": {}, "when": {},
}

// Tokenize lower-cases text, splits on non-letter non-digit runes, and
// drops single-character tokens and stop words. Duplicate tokens are kept;
// callers that need a set deduplicate themselves.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)

	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
