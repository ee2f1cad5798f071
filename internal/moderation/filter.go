// Package moderation screens venue group chat content before it is stored.
package moderation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// DefaultWords is the built-in forbidden word list. Deployments extend it
// through NewFilter.
var DefaultWords = []string{
	"idiot", "stupid", "loser", "slut", "whore", "bitch", "bastard",
	"retard", "faggot", "nigger", "kys", "scam", "onlyfans",
}

// Filter performs case-insensitive whole-word matching.
type Filter struct {
	words map[string]struct{}
}

func NewFilter(words ...string) *Filter {
	f := &Filter{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			f.words[fold(w)] = struct{}{}
		}
	}
	return f
}

// Check returns the first forbidden word found in text, if any.
func (f *Filter) Check(text string) (string, bool) {
	if f == nil || len(f.words) == 0 {
		return "", false
	}
	for _, token := range strings.FieldsFunc(text, isSeparator) {
		if _, hit := f.words[fold(token)]; hit {
			return token, true
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// fold builds a fresh Caser per call; Casers are not goroutine safe.
func fold(s string) string {
	return cases.Fold().String(s)
}
