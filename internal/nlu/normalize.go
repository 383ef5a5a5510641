package nlu

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes raw text for lexical matching: trims, lowercases,
// folds "ё" to "е" and collapses whitespace.
func Normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, "ё", "е")
	return strings.Join(strings.Fields(t), " ")
}

// lettersOnly replaces every non-letter with a space and collapses the result.
func lettersOnly(norm string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, norm)
	return strings.Join(strings.Fields(mapped), " ")
}

// tokenize splits normalized text into letter/digit words.
func tokenize(norm string) map[string]struct{} {
	words := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
// Both are expected in lettersOnly form.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}
