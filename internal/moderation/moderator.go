package moderation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Severity is the classification returned by Moderator.Check.
type Severity string

const (
	SeverityClean   Severity = "clean"
	SeverityWarning Severity = "warning"
	SeverityBlocked Severity = "blocked"
)

// CheckResult is the outcome of Moderator.Check.
type CheckResult struct {
	Severity Severity
	Reason   string
}

var (
	exclaimRunPattern   = regexp.MustCompile(`[!?]{3,}`)
	bareHTTPPattern     = regexp.MustCompile(`(?i)https?://`)
	hypeWordPattern     = regexp.MustCompile(`(?i)\b(free|win|winner|prize|claim|limited|urgent)\b`)
	violentThreatVariants = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi('?m| am)?\s*(going to|gonna)\s*(kill|hurt|find)\s*you\b`),
	}
)

var warningTerms = []string{
	"idiot", "stupid", "dumb", "loser", "jerk", "moron", "pathetic", "scum",
}

// Moderator implements the three pure content-classification operations
// from SPEC_FULL.md §4.5: isSpam (point-scored), check (severity
// classifier), and mask (span redaction). It wraps a Filter for the
// keyword/phrase/leetspeak blocked category and adds the remaining blocked
// categories and the warning list on top.
type Moderator struct {
	blockedFilter *Filter
	warningRegex  *regexp.Regexp
}

// NewModerator returns a Moderator loaded with the default blocked and
// warning term lists (SPEC_FULL.md §4.11).
func NewModerator() *Moderator {
	escaped := make([]string, len(warningTerms))
	for i, t := range warningTerms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return &Moderator{
		blockedFilter: NewFilter(),
		warningRegex:  regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`),
	}
}

// IsSpam implements spec.md §4.5's point-scored spam predicate: true iff the
// accumulated score is ≥ 3.
func (m *Moderator) IsSpam(text string) bool {
	return m.spamScore(text) >= 3
}

func (m *Moderator) spamScore(text string) int {
	score := 0

	if len(text) > 10 && upperCaseRatio(text) > 0.7 {
		score += 2
	}
	if hasCharFlood(text) { // ≥5 run, same threshold as spam.go's checkSpamPatterns
		score += 2
	}
	if exclaimRunPattern.MatchString(text) {
		score += 1
	}
	if k := len(bareHTTPPattern.FindAllString(text, -1)); k > 2 {
		score += k
	}
	if hypeWordPattern.MatchString(text) {
		score += 1
	}

	return score
}

// upperCaseRatio returns the fraction of letters in text that are uppercase.
// Returns 0 if text has no letters.
func upperCaseRatio(text string) float64 {
	var upper, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// Check classifies text per spec.md §4.5: blocked categories evaluated
// first (explicit terms/slurs/phrases, leetspeak variants, violent-threat
// templates, multiple URLs, long character runs), then the warning list,
// else clean.
func (m *Moderator) Check(text string) CheckResult {
	if result := m.blockedFilter.Check(text); result.Blocked && result.Reason == "blocked_keyword" {
		return CheckResult{Severity: SeverityBlocked, Reason: result.Reason}
	}
	for _, re := range violentThreatVariants {
		if re.MatchString(text) {
			return CheckResult{Severity: SeverityBlocked, Reason: "violent_threat"}
		}
	}
	if len(bareHTTPPattern.FindAllString(text, -1)) >= 3 {
		return CheckResult{Severity: SeverityBlocked, Reason: "multiple_urls"}
	}
	if hasCharFloodN(text, 8) {
		return CheckResult{Severity: SeverityBlocked, Reason: "char_flood"}
	}
	if m.warningRegex.MatchString(text) {
		return CheckResult{Severity: SeverityWarning, Reason: "warning_term"}
	}
	return CheckResult{Severity: SeverityClean}
}

// hasCharFloodN generalizes spam.go's hasCharFlood to an arbitrary threshold.
func hasCharFloodN(text string, threshold int) bool {
	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

type span struct{ start, end int }

// Mask replaces every matched blocked/warning span with '*' of the same
// rune length, preserving |mask(t)| = |t|.
func (m *Moderator) Mask(text string) string {
	runes := []rune(text)
	spans := m.matchSpans(text, len(runes))
	if len(spans) == 0 {
		return text
	}

	masked := make([]rune, len(runes))
	copy(masked, runes)
	for _, sp := range spans {
		for i := sp.start; i < sp.end && i < len(masked); i++ {
			masked[i] = '*'
		}
	}
	return string(masked)
}

func (m *Moderator) matchSpans(text string, runeLen int) []span {
	var spans []span

	collect := func(idx [][]int) {
		for _, pair := range idx {
			start := len([]rune(text[:pair[0]]))
			end := len([]rune(text[:pair[1]]))
			spans = append(spans, span{start, end})
		}
	}

	collect(m.warningRegex.FindAllStringIndex(text, -1))
	collect(bareHTTPPattern.FindAllStringIndex(text, -1))
	for _, re := range violentThreatVariants {
		collect(re.FindAllStringIndex(text, -1))
	}
	for w := range m.blockedFilter.words {
		wordRegex := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		collect(wordRegex.FindAllStringIndex(text, -1))
	}
	for _, phrase := range m.blockedFilter.phrases {
		phraseRegex := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.Join(phrase, " ")) + `\b`)
		collect(phraseRegex.FindAllStringIndex(text, -1))
	}

	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
