// Package advisor asks an external language model how the interview should
// proceed. The advisor is consulted once per manager message; when it is
// unreachable or returns garbage the caller falls back to deterministic
// question selection, so every error path here degrades to "no opinion".
package advisor

// Next actions the advisor may propose.
const (
	ActionAsk       = "ASK"
	ActionFollowUp  = "FOLLOW_UP"
	ActionTopicWrap = "TOPIC_WRAP"
	ActionEnd       = "END"
)

// Message is one turn of recent conversation passed for context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TopicState mirrors the tracker state for the current topic.
type TopicState struct {
	Confidence    float64  `json:"confidence"`
	CoveredPoints []string `json:"coveredPoints"`
}

// Context is everything the advisor sees for one decision.
type Context struct {
	CurrentTopic       int
	RemainingQuestions []string
	RecentMessages     []Message
	TopicState         *TopicState
}

// Response is the advisor's structured opinion on the next step.
type Response struct {
	BotMessage           string   `json:"bot_message"`
	TopicNumber          int      `json:"topic_number"`
	NextAction           string   `json:"next_action"`
	NextQuestionText     string   `json:"next_question_text,omitempty"`
	MarkQuestionsCovered []string `json:"mark_questions_covered,omitempty"`
	TopicConfidence      float64  `json:"topic_confidence"`
	CoveredPoints        []string `json:"covered_points"`
	QuickReplies         []string `json:"quick_replies"`
}

func validAction(a string) bool {
	switch a {
	case ActionAsk, ActionFollowUp, ActionTopicWrap, ActionEnd:
		return true
	}
	return false
}

// Valid reports whether the response satisfies the schema the progression
// engine relies on. Invalid responses are discarded as "no opinion".
func (r *Response) Valid() bool {
	if r.BotMessage == "" || !validAction(r.NextAction) {
		return false
	}
	if r.TopicConfidence < 0 || r.TopicConfidence > 1 {
		return false
	}
	return true
}
