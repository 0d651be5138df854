// Package interpret extracts structured answers from free-form provider text.
//
// Everything here is heuristic pattern matching over the response body;
// there is no attempt at semantic understanding.
package interpret

import (
	"regexp"
	"strings"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

const maxUsernameLen = 15

var validUsername = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// usernamePatterns are tried in order. Labelled forms win over a bare @token.
// Captures are greedy so an over-long handle is rejected rather than truncated.
var usernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)username[:\s]+@?([A-Za-z0-9_]+)`),
	regexp.MustCompile(`(?i)handle[:\s]+@?([A-Za-z0-9_]+)`),
	regexp.MustCompile(`(?i)twitter[:\s]+@?([A-Za-z0-9_]+)`),
	regexp.MustCompile(`@([A-Za-z0-9_]+)`),
}

// ExtractUsername returns the first acceptable handle in text, without its
// leading @, or "" when none is found.
func ExtractUsername(text string) string {
	for _, re := range usernamePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if candidate := m[1]; acceptUsername(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func acceptUsername(s string) bool {
	return len(s) >= 1 && len(s) <= maxUsernameLen && validUsername.MatchString(s)
}

type keywordLevel struct {
	re    *regexp.Regexp
	level model.Confidence
}

// confidenceKeywords are checked in priority order; the first category with
// any whole-word hit anywhere in the text wins.
var confidenceKeywords = []keywordLevel{
	{regexp.MustCompile(`(?i)\b(high|strong|clear|definite|certain)\b`), model.ConfidenceHigh},
	{regexp.MustCompile(`(?i)\b(medium|moderate|somewhat|partial)\b`), model.ConfidenceMedium},
	{regexp.MustCompile(`(?i)\b(low|weak|minimal|uncertain)\b`), model.ConfidenceLow},
	{regexp.MustCompile(`(?i)\b(none|no|false|not found)\b`), model.ConfidenceNone},
}

var confidenceLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)confidence[:\s]+(high|medium|low|none)`),
	regexp.MustCompile(`(?i)confidence[:\s]+(strong|moderate|weak|none)`),
	regexp.MustCompile(`(?i)level[:\s]+(high|medium|low|none)`),
}

var confidenceSynonyms = map[string]model.Confidence{
	"high":     model.ConfidenceHigh,
	"strong":   model.ConfidenceHigh,
	"medium":   model.ConfidenceMedium,
	"moderate": model.ConfidenceMedium,
	"low":      model.ConfidenceLow,
	"weak":     model.ConfidenceLow,
	"none":     model.ConfidenceNone,
}

// ExtractConfidence maps the text to one of the four confidence levels, or
// returns "" when no level can be inferred.
func ExtractConfidence(text string) model.Confidence {
	for _, kw := range confidenceKeywords {
		if kw.re.MatchString(text) {
			return kw.level
		}
	}
	for _, re := range confidenceLabels {
		if m := re.FindStringSubmatch(text); m != nil {
			if level, ok := confidenceSynonyms[strings.ToLower(m[1])]; ok {
				return level
			}
		}
	}
	return ""
}

// ParseExistence interprets an existence-check answer. Text mentioning
// "true" without "false" is a hit; anything mentioning "false" is a miss;
// everything else is a miss flagged as ambiguous.
func ParseExistence(text string) (exists, ambiguous bool) {
	lower := strings.ToLower(text)
	hasTrue := strings.Contains(lower, "true")
	hasFalse := strings.Contains(lower, "false")
	switch {
	case hasTrue && !hasFalse:
		return true, false
	case hasFalse:
		return false, false
	default:
		return false, true
	}
}
