package progression

import (
	"fmt"

	"github.com/raayon/raayon/internal/storage"
)

// Snapshot is the bootstrap view a respondent client loads before (or after)
// sending messages: everything needed to render the conversation so far.
type Snapshot struct {
	Interview        storage.Interview
	Questions        []storage.Question
	Messages         []storage.ChatMessage
	States           []storage.TopicState
	CurrentTopic     int
	NextQuestionText string
	Progress         Progress
}

// State resolves an interview by share token and assembles its snapshot. The
// next question is computed the same way a cycle would pick it, so the view
// never disagrees with what the engine will ask next.
func (e *Engine) State(shareToken string) (*Snapshot, error) {
	cs, err := e.load(shareToken)
	if err != nil {
		return nil, err
	}

	sn := &Snapshot{
		Interview:    cs.interview,
		Questions:    cs.questions,
		Messages:     cs.messages,
		States:       cs.states,
		CurrentTopic: cs.currentTopic,
		Progress:     e.progress(cs),
	}
	if _, q, ok := nextRemaining(cs.remaining, cs.interview.SelectedTopics, cs.currentTopic); ok {
		sn.NextQuestionText = q.QuestionText
	}
	return sn, nil
}

// Complete marks the interview completed and enqueues the summary email.
// Calling it on an already completed interview is a no-op.
func (e *Engine) Complete(shareToken string) (storage.Interview, error) {
	iv, err := e.store.GetInterviewByToken(shareToken)
	if err != nil {
		return storage.Interview{}, err
	}
	if iv.Status == storage.StatusCompleted {
		return iv, nil
	}
	if err := e.store.UpdateInterviewStatus(iv.ID, storage.StatusCompleted); err != nil {
		return storage.Interview{}, fmt.Errorf("completing interview: %w", err)
	}
	iv.Status = storage.StatusCompleted
	e.enqueueSummary(iv.ID)
	return iv, nil
}
