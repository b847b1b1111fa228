// Package confidence tracks how thoroughly each topic has been explored:
// a scalar in [0,1] per topic plus the free-text facts learned along the way.
package confidence

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/raayon/raayon/internal/storage"
)

// Threshold below which a topic still needs attention.
const Threshold = 0.7

// FallbackCap bounds the heuristic confidence so only the advisor can call
// a topic fully explored.
const FallbackCap = 0.9

// SelectCurrentTopic returns the first selected topic whose confidence is
// below the threshold. When every topic clears it, the first selected topic
// is returned as the degenerate default.
func SelectCurrentTopic(selectedTopics []int, states []storage.TopicState) int {
	if len(selectedTopics) == 0 {
		return 0
	}
	byTopic := make(map[int]float64, len(states))
	for _, ts := range states {
		byTopic[ts.TopicNumber] = ts.Confidence
	}
	for _, topic := range selectedTopics {
		if byTopic[topic] < Threshold {
			return topic
		}
	}
	return selectedTopics[0]
}

// Rules configures the question-vs-fact heuristic used to clean covered
// points before they enter a topic state.
type Rules struct {
	// QuestionWords are interrogative openers; a point starting with one is
	// treated as a question, not a fact.
	QuestionWords []string
	// MinFactLength is the shortest string (in runes) accepted as a fact.
	MinFactLength int
	// QuestionPattern catches question shapes without an interrogative
	// opener or trailing question mark.
	QuestionPattern *regexp.Regexp
}

// DefaultRules covers Hebrew and English interrogatives, the languages the
// interview runs in.
func DefaultRules() Rules {
	return Rules{
		QuestionWords: []string{
			"מה", "מי", "איך", "למה", "מדוע", "מתי", "איפה", "כמה", "האם", "איזה", "אילו",
			"what", "who", "how", "why", "when", "where", "which",
			"do", "does", "did", "can", "could", "would", "should", "is", "are",
		},
		MinFactLength:   8,
		QuestionPattern: regexp.MustCompile(`(?i)^\S+\s+(can|could|יכול|יכולה|אפשר)\s+`),
	}
}

// IsLikelyQuestion reports whether text looks like a question (or is too
// short to be a useful fact) rather than something learned.
func (r Rules) IsLikelyQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < r.MinFactLength {
		return true
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, w := range r.QuestionWords {
		if strings.HasPrefix(lower, w+" ") {
			return true
		}
	}
	if r.QuestionPattern != nil && r.QuestionPattern.MatchString(trimmed) {
		return true
	}
	return false
}

// MergeCovered folds advisor-reported covered points into the existing set:
// question-shaped strings are dropped, duplicates are ignored, and first
// appearance order is preserved.
func MergeCovered(existing, incoming []string, rules Rules) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range incoming {
		p = strings.TrimSpace(p)
		if p == "" || rules.IsLikelyQuestion(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	return merged
}

// Fallback recomputes a topic's confidence from answer progress when the
// advisor has no opinion. The result never drops below the current value,
// so heuristic confidence is monotone across cycles.
func Fallback(current float64, answered, total int) float64 {
	if total < 1 {
		total = 1
	}
	estimated := float64(answered) / float64(total) * 1.2
	if estimated > FallbackCap {
		estimated = FallbackCap
	}
	if estimated < current {
		return current
	}
	return estimated
}
