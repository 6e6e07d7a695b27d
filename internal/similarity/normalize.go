// Package similarity scores how close two short phrases (project keys and names) are,
// tolerating typos, merged or split words and diacritics.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes s, strips combining marks, lowercases it and splits it into tokens made of
// letters, digits and underscores. compact is all tokens concatenated, so "AI TECH" and "AITECH"
// share the same compact form.
func Normalize(s string) (tokens []string, compact string) {
	folded := stripMarks(s)
	tokens = tokenize(strings.ToLower(folded))
	return tokens, strings.Join(tokens, "")
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// phoneticFolder maps the usual Latin spellings of Cyrillic "х" onto one letter.
var phoneticFolder = strings.NewReplacer("kh", "h", "ch", "h", "x", "h")

func foldPhonetic(compact string) string {
	return phoneticFolder.Replace(compact)
}
