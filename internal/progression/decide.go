// Package progression drives the interview forward: one inbound respondent
// message produces exactly one decision about what the bot says next. The
// advisor proposes content, but termination and question selection are always
// reconciled against the coverage resolver, which holds the ground truth.
package progression

import (
	"github.com/raayon/raayon/internal/advisor"
	"github.com/raayon/raayon/internal/storage"
)

// Decision is the resolved next step after reconciling the advisor's opinion
// with the remaining catalog.
type Decision struct {
	Action       string
	TopicNumber  int
	QuestionText string
	// BotMessage is advisor-authored text; empty means the caller renders
	// the question text (or the closing message) directly.
	BotMessage string
	IsFollowUp bool
	// OriginalQuestionText links a follow-up to the catalog question it
	// elaborates on; set by the engine, not by Decide.
	OriginalQuestionText string
	// Overrode is set when the advisor proposed END but questions remained.
	Overrode bool
}

// nextRemaining scans selectedTopics round-robin starting at currentTopic
// (inclusive) and returns the first topic that still has a question.
func nextRemaining(remaining map[int][]storage.Question, selectedTopics []int, currentTopic int) (int, storage.Question, bool) {
	if len(selectedTopics) == 0 {
		return 0, storage.Question{}, false
	}
	start := 0
	for i, t := range selectedTopics {
		if t == currentTopic {
			start = i
			break
		}
	}
	for i := range selectedTopics {
		topic := selectedTopics[(start+i)%len(selectedTopics)]
		if qs := remaining[topic]; len(qs) > 0 {
			return topic, qs[0], true
		}
	}
	return 0, storage.Question{}, false
}

// advance is the deterministic path: first remaining question in the current
// topic, else the round-robin scan, else END.
func advance(remaining map[int][]storage.Question, selectedTopics []int, currentTopic int) Decision {
	if topic, q, ok := nextRemaining(remaining, selectedTopics, currentTopic); ok {
		return Decision{Action: advisor.ActionAsk, TopicNumber: topic, QuestionText: q.QuestionText}
	}
	return Decision{Action: advisor.ActionEnd, TopicNumber: currentTopic}
}

// Decide reconciles the advisor's opinion (nil means no opinion) with the
// remaining questions. The advisor never gets the last word on termination:
// END is honored only when nothing remains across every selected topic.
// followUpTaken caps FOLLOW_UP at one per original question.
func Decide(opinion *advisor.Response, remaining map[int][]storage.Question, selectedTopics []int, currentTopic int, followUpTaken bool) Decision {
	if opinion == nil {
		return advance(remaining, selectedTopics, currentTopic)
	}

	switch opinion.NextAction {
	case advisor.ActionEnd:
		if topic, q, ok := nextRemaining(remaining, selectedTopics, currentTopic); ok {
			return Decision{Action: advisor.ActionAsk, TopicNumber: topic, QuestionText: q.QuestionText, Overrode: true}
		}
		return Decision{Action: advisor.ActionEnd, TopicNumber: currentTopic, BotMessage: opinion.BotMessage}

	case advisor.ActionFollowUp:
		if followUpTaken {
			return advance(remaining, selectedTopics, currentTopic)
		}
		topic := topicOrCurrent(opinion.TopicNumber, selectedTopics, currentTopic)
		return Decision{
			Action:       advisor.ActionFollowUp,
			TopicNumber:  topic,
			QuestionText: opinion.NextQuestionText,
			BotMessage:   opinion.BotMessage,
			IsFollowUp:   true,
		}

	case advisor.ActionAsk, advisor.ActionTopicWrap:
		if opinion.NextQuestionText == "" {
			return advance(remaining, selectedTopics, currentTopic)
		}
		topic := topicOrCurrent(opinion.TopicNumber, selectedTopics, currentTopic)
		return Decision{
			Action:       opinion.NextAction,
			TopicNumber:  topic,
			QuestionText: opinion.NextQuestionText,
			BotMessage:   opinion.BotMessage,
		}
	}

	return advance(remaining, selectedTopics, currentTopic)
}

// topicOrCurrent accepts the advisor's topic only when it is one of the
// interview's selected topics.
func topicOrCurrent(proposed int, selectedTopics []int, currentTopic int) int {
	for _, t := range selectedTopics {
		if t == proposed {
			return proposed
		}
	}
	return currentTopic
}
