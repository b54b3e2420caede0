package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextChars is the maximum number of characters a chat message may
// contain after sanitization (spec.md §4.4 step 3/4).
const MaxTextChars = 2000

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Sanitize HTML-escapes the reserved characters <, >, ", ', trims
// surrounding whitespace, and clamps the result to MaxTextChars runes.
// A message longer than the limit is trimmed rather than rejected; the
// schema check in ValidateMessage only rejects what remains empty.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	text = htmlEscaper.Replace(text)

	runes := []rune(text)
	if len(runes) > MaxTextChars {
		runes = runes[:MaxTextChars]
	}
	return string(runes)
}

// ValidateMessage checks that an already-sanitized chat message meets the
// schema requirement: length in [1, MaxTextChars] runes, valid UTF-8.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	return nil
}
