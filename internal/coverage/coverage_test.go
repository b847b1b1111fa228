package coverage

import (
	"testing"

	"github.com/raayon/raayon/internal/storage"
)

func botQuestion(text string) storage.ChatMessage {
	return storage.ChatMessage{Role: storage.RoleBot, Content: text, QuestionText: text}
}

func TestAskedOrCoveredUnion(t *testing.T) {
	messages := []storage.ChatMessage{
		botQuestion("how do you delegate?"),
		{Role: storage.RoleManager, Content: "I hand off most routine work"},
		{
			Role:    storage.RoleBot,
			Content: "got it",
			Meta:    &storage.MessageMeta{CoveredQuestions: []string{"who decides priorities?", ""}},
		},
	}

	covered := AskedOrCovered(messages)
	if len(covered) != 2 {
		t.Fatalf("expected 2 covered questions, got %d: %v", len(covered), covered)
	}
	for _, q := range []string{"how do you delegate?", "who decides priorities?"} {
		if _, ok := covered[q]; !ok {
			t.Errorf("%q missing from covered set", q)
		}
	}
}

func TestAskedOrCoveredIgnoresManagerText(t *testing.T) {
	messages := []storage.ChatMessage{
		{Role: storage.RoleManager, Content: "how do you delegate?", QuestionText: "how do you delegate?"},
	}
	if got := AskedOrCovered(messages); len(got) != 0 {
		t.Errorf("manager messages must not mark coverage: %v", got)
	}
}

func TestRemainingPreservesCatalogOrder(t *testing.T) {
	questions := []storage.Question{
		{ID: "q1", TopicNumber: 1, QuestionText: "a"},
		{ID: "q2", TopicNumber: 1, QuestionText: "b"},
		{ID: "q3", TopicNumber: 2, QuestionText: "c"},
		{ID: "q4", TopicNumber: 2, QuestionText: "d"},
	}
	messages := []storage.ChatMessage{botQuestion("b")}

	remaining := Remaining(questions, messages)
	if got := remaining[1]; len(got) != 1 || got[0].QuestionText != "a" {
		t.Errorf("topic 1 remaining = %+v, want [a]", got)
	}
	if got := remaining[2]; len(got) != 2 || got[0].QuestionText != "c" || got[1].QuestionText != "d" {
		t.Errorf("topic 2 remaining = %+v, want [c d]", got)
	}
}

// Coverage only grows: replaying a transcript with one more bot question can
// never resurrect a question.
func TestRemainingMonotoneUnderNewMessages(t *testing.T) {
	questions := []storage.Question{
		{ID: "q1", TopicNumber: 1, QuestionText: "a"},
		{ID: "q2", TopicNumber: 1, QuestionText: "b"},
	}
	messages := []storage.ChatMessage{botQuestion("a")}

	before := Remaining(questions, messages)
	after := Remaining(questions, append(messages, botQuestion("b")))

	for topic, qs := range after {
		prev := make(map[string]struct{})
		for _, q := range before[topic] {
			prev[q.QuestionText] = struct{}{}
		}
		for _, q := range qs {
			if _, ok := prev[q.QuestionText]; !ok {
				t.Errorf("question %q reappeared after more messages", q.QuestionText)
			}
		}
	}
	if len(after[1]) != 0 {
		t.Errorf("expected topic 1 exhausted, got %+v", after[1])
	}
}
