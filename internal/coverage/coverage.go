// Package coverage decides which catalog questions still need to be asked.
// A question counts as covered once the bot has posed it, or once the advisor
// reports the manager already addressed it in an earlier answer.
package coverage

import (
	"github.com/raayon/raayon/internal/storage"
)

// AskedOrCovered returns the set of question texts already dealt with: every
// question the bot posed plus everything flagged as covered in message
// metadata.
func AskedOrCovered(messages []storage.ChatMessage) map[string]struct{} {
	covered := make(map[string]struct{})
	for _, m := range messages {
		if m.Role == storage.RoleBot && m.QuestionText != "" {
			covered[m.QuestionText] = struct{}{}
		}
		if m.Meta == nil {
			continue
		}
		for _, q := range m.Meta.CoveredQuestions {
			if q != "" {
				covered[q] = struct{}{}
			}
		}
	}
	return covered
}

// Remaining groups the not-yet-covered questions by topic, preserving
// catalog order within each topic. questions must already be the enabled
// catalog for the interview in its sort order.
func Remaining(questions []storage.Question, messages []storage.ChatMessage) map[int][]storage.Question {
	covered := AskedOrCovered(messages)
	remaining := make(map[int][]storage.Question)
	for _, q := range questions {
		if _, ok := covered[q.QuestionText]; ok {
			continue
		}
		remaining[q.TopicNumber] = append(remaining[q.TopicNumber], q)
	}
	return remaining
}
