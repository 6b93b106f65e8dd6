package merge

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var caser = cases.Lower(language.Und)

// stripSet is the exact punctuation set §4.8 strips: {. , ! ? ; : ' "}.
const stripSet = ".,!?;:'\""

// normalizeWord case-folds and strips every occurrence of the
// punctuation set, mirroring LongestMatchFinder.normalizeWord's
// regex-replace-all (not a trim — "don't" becomes "dont", not "don't").
// Case folding goes through golang.org/x/text/cases rather than
// strings.ToLower so multi-byte, non-ASCII transcript text (accents,
// other scripts) folds correctly.
func normalizeWord(w string) string {
	w = caser.String(w)
	w = strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripSet, r) {
			return -1
		}
		return r
	}, w)
	return strings.TrimSpace(w)
}

// tokenize splits text on whitespace and normalizes every token,
// dropping tokens that become empty (pure punctuation).
func tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		n := normalizeWord(f)
		if n != "" {
			tokens = append(tokens, n)
		}
	}
	return tokens
}
