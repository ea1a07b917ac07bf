// Package retrieval scores corpus chunks against a query by literal term
// frequency and selects the most relevant ones.
package retrieval

import (
	"strings"
	"unicode/utf8"
)

// MinTermLength is the shortest term kept by Normalize, exclusive.
const MinTermLength = 3

const punctuation = `.,?!;:()"'`

// Normalize lowercases query, splits it on whitespace, removes punctuation
// from every token, and keeps tokens longer than MinTermLength characters.
// Order is preserved and duplicates are kept.
func Normalize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Map(func(r rune) rune {
			if strings.ContainsRune(punctuation, r) {
				return -1
			}
			return r
		}, f)
		if utf8.RuneCountInString(t) > MinTermLength {
			terms = append(terms, t)
		}
	}
	return terms
}
