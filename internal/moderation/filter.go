// Package moderation provides content filtering and moderation capabilities.
// It screens chat messages for prohibited content and enforces community
// guidelines before messages are delivered to recipients.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult is the outcome of a single Check call.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" | "spam_pattern"
	Term    string
}

// Filter screens text against a keyword/phrase blocklist (with leetspeak
// normalization) and the spam-pattern checks in spam.go.
type Filter struct {
	words   map[string]bool
	phrases [][]string // each entry is a phrase's word sequence, lowercased
}

// leetMap maps common leetspeak substitutions to their plain-letter equivalent.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'!': 'i',
	'3': 'e',
	'4': 'a',
	'@': 'a',
	'5': 's',
	'$': 's',
	'7': 't',
}

// defaultBlockedTerms is the built-in blocklist: slurs, explicit profanity,
// and self-harm/exploitation phrases. Single words go into Filter.words;
// multi-word entries become contiguous phrase matches.
var defaultBlockedTerms = []string{
	"nigger",
	"faggot",
	"retard",
	"kike",
	"spic",
	"chink",
	"fuck",
	"shit",
	"cunt",
	"kill yourself",
	"child porn",
	"send nudes",
	"heil hitler",
	"bomb threat",
	"free bitcoin",
}

// NewFilter returns a Filter loaded with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultBlockedTerms)
}

// NewFilterWithTerms returns a Filter loaded with exactly the given terms,
// useful for tests that want to isolate one category. Empty and
// whitespace-only terms are discarded.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{
		words: make(map[string]bool),
	}
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" {
			continue
		}
		words := strings.Fields(t)
		if len(words) > 1 {
			f.phrases = append(f.phrases, words)
		} else {
			f.words[t] = true
		}
	}
	return f
}

// Check classifies text as blocked (keyword/phrase match or spam pattern) or
// clean. Keyword/phrase matches take priority over spam-pattern matches.
func (f *Filter) Check(text string) FilterResult {
	if result, ok := f.checkPhrases(text); ok {
		return result
	}
	if result, ok := f.checkWords(text); ok {
		return result
	}
	return f.checkSpamPatterns(text)
}

// checkWords tests each whitespace-delimited token (leading/trailing
// punctuation trimmed, leetspeak-normalized) against the single-word
// blocklist. Matching is whole-token, never substring.
func (f *Filter) checkWords(text string) (FilterResult, bool) {
	if len(f.words) == 0 {
		return FilterResult{}, false
	}
	for _, tok := range tokenizeLeet(text) {
		trimmed := strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			continue
		}
		normalized := normalizeLeet(trimmed)
		if f.words[normalized] {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: normalized}, true
		}
	}
	return FilterResult{}, false
}

// checkPhrases tests plain (punctuation-stripped, lowercased) tokens for a
// contiguous run matching any blocked phrase's word sequence.
func (f *Filter) checkPhrases(text string) (FilterResult, bool) {
	if len(f.phrases) == 0 {
		return FilterResult{}, false
	}
	tokens := tokenizePlain(text)
	for _, phrase := range f.phrases {
		if containsContiguous(tokens, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: strings.Join(phrase, " ")}, true
		}
	}
	return FilterResult{}, false
}

func containsContiguous(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// CheckInterests filters out interest tags that are blocked, preserving
// the relative order of the remaining clean ones.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, i := range interests {
		if !f.Check(i).Blocked {
			clean = append(clean, i)
		}
	}
	return clean
}

// normalizeLeet lowercases s and substitutes common leetspeak characters
// with their plain-letter equivalent.
func normalizeLeet(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := leetMap[r]; ok {
			b.WriteRune(rep)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenizePlain splits text into lowercased words, discarding any non-letter,
// non-digit separator (punctuation, repeated dashes, etc).
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits text on whitespace only, preserving punctuation and
// leetspeak characters within each token so interior substitutions (e.g.
// "off3n$!v3") survive intact for normalizeLeet to resolve.
func tokenizeLeet(text string) []string {
	return strings.Fields(text)
}
