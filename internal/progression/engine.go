package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/raayon/raayon/internal/advisor"
	"github.com/raayon/raayon/internal/confidence"
	"github.com/raayon/raayon/internal/coverage"
	"github.com/raayon/raayon/internal/storage"
)

const (
	closingMessage  = "סיימנו את כל השאלות. תודה!"
	skipPlaceholder = "דולג"
	pauseMessage    = "נעצור כאן. אפשר לחזור להמשיך בכל שלב דרך אותו קישור."

	recentWindow = 8

	// SummaryJobType is the queue job enqueued once an interview completes.
	SummaryJobType = "send_summary"
)

// Respondent actions.
const (
	ActionAnswer = "answer"
	ActionSkip   = "skip"
	ActionPause  = "pause"
)

func defaultQuickReplies() []string {
	return []string{"המשך", "דלג", "לא יודע", "עצור"}
}

// Advisor is the reasoning service consulted on the answer branch. A nil
// response with nil error means "no opinion".
type Advisor interface {
	NextAction(ctx context.Context, managerMessage, action string, ac advisor.Context) (*advisor.Response, error)
}

// Progress counts unique answered and skipped questions against the enabled
// catalog of the interview's selected topics.
type Progress struct {
	Answered int `json:"answered"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// Result is the outward contract of one cycle.
type Result struct {
	BotMessage       string   `json:"bot_message"`
	NextAction       string   `json:"next_action"`
	TopicNumber      int      `json:"topic_number"`
	NextQuestionText string   `json:"next_question_text,omitempty"`
	QuickReplies     []string `json:"quick_replies"`
	TopicConfidence  float64  `json:"topic_confidence"`
	CoveredPoints    []string `json:"covered_points"`
	Progress         Progress `json:"progress"`
}

// Engine runs one progression cycle per inbound respondent message.
type Engine struct {
	store   *storage.Store
	advisor Advisor
	rules   confidence.Rules
}

func NewEngine(store *storage.Store, adv Advisor) *Engine {
	return &Engine{
		store:   store,
		advisor: adv,
		rules:   confidence.DefaultRules(),
	}
}

// cycleState is everything loaded once per cycle.
type cycleState struct {
	interview    storage.Interview
	questions    []storage.Question
	messages     []storage.ChatMessage
	states       []storage.TopicState
	currentTopic int
	remaining    map[int][]storage.Question
}

func (e *Engine) load(shareToken string) (*cycleState, error) {
	iv, err := e.store.GetInterviewByToken(shareToken)
	if err != nil {
		return nil, err
	}

	all, err := e.store.ListEnabledQuestions(iv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	selected := make(map[int]struct{}, len(iv.SelectedTopics))
	for _, t := range iv.SelectedTopics {
		selected[t] = struct{}{}
	}
	questions := make([]storage.Question, 0, len(all))
	for _, q := range all {
		if _, ok := selected[q.TopicNumber]; ok {
			questions = append(questions, q)
		}
	}

	messages, err := e.store.ListMessages(iv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	states, err := e.store.ListTopicStates(iv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading topic states: %w", err)
	}

	return &cycleState{
		interview:    iv,
		questions:    questions,
		messages:     messages,
		states:       states,
		currentTopic: confidence.SelectCurrentTopic(iv.SelectedTopics, states),
		remaining:    coverage.Remaining(questions, messages),
	}, nil
}

// HandleMessage executes one cycle: resolve the interview, branch on the
// respondent action, reconcile with the advisor, persist the outcome, and
// answer with the next bot message.
func (e *Engine) HandleMessage(ctx context.Context, shareToken, message, action string) (*Result, error) {
	cs, err := e.load(shareToken)
	if err != nil {
		return nil, err
	}

	if action == "" {
		action = ActionAnswer
	}

	// First contact seeds the thread with an opening message; the inbound
	// text (typically a start signal) is not recorded as an answer.
	if len(cs.messages) == 0 {
		return e.open(ctx, cs)
	}

	if err := e.ensureStarted(&cs.interview); err != nil {
		return nil, err
	}

	switch action {
	case ActionSkip:
		return e.handleSkip(cs, message)
	case ActionPause:
		return e.handlePause(cs, message)
	default:
		return e.handleAnswer(ctx, cs, message)
	}
}

func (e *Engine) ensureStarted(iv *storage.Interview) error {
	if iv.Status != storage.StatusNotStarted {
		return nil
	}
	if err := e.store.UpdateInterviewStatus(iv.ID, storage.StatusInProgress); err != nil {
		return fmt.Errorf("starting interview: %w", err)
	}
	iv.Status = storage.StatusInProgress
	return nil
}

// open synthesizes the greeting plus the first question.
func (e *Engine) open(ctx context.Context, cs *cycleState) (*Result, error) {
	if err := e.ensureStarted(&cs.interview); err != nil {
		return nil, err
	}

	d := advance(cs.remaining, cs.interview.SelectedTopics, cs.currentTopic)
	if d.Action == advisor.ActionEnd {
		// Nothing to ask at all: empty or fully disabled catalog.
		return e.finish(cs, d, nil)
	}

	content := e.openingText(cs.interview, d.QuestionText)
	if err := e.store.AppendMessage(storage.ChatMessage{
		ID:           uuid.NewString(),
		InterviewID:  cs.interview.ID,
		Role:         storage.RoleBot,
		Content:      content,
		TopicNumber:  d.TopicNumber,
		QuestionText: d.QuestionText,
		Meta:         &storage.MessageMeta{Action: d.Action},
	}); err != nil {
		return nil, fmt.Errorf("saving opening message: %w", err)
	}

	res := e.buildResult(cs, d)
	res.BotMessage = content
	return res, nil
}

func (e *Engine) openingText(iv storage.Interview, firstQuestion string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "שלום %s! תודה שהצטרפת לריאיון קצר על סגנון הניהול שלך.", iv.ManagerName)
	b.WriteString(" עונים בחופשיות, ואפשר תמיד לבחור דלג, לא יודע או עצור.")
	if iv.ChallengeID != "" {
		if ch, err := e.store.GetChallenge(iv.ChallengeID); err == nil && ch.Description != "" {
			fmt.Fprintf(&b, "\nהריאיון מתמקד באתגר: %s", ch.Description)
		}
	}
	fmt.Fprintf(&b, "\n\n%s", firstQuestion)
	return b.String()
}

// handleSkip records a skipped answer for the most recent bot question and
// advances deterministically. The advisor is never consulted on skip.
func (e *Engine) handleSkip(cs *cycleState, message string) (*Result, error) {
	content := message
	if content == "" {
		content = skipPlaceholder
	}
	if err := e.store.AppendMessage(storage.ChatMessage{
		ID:          uuid.NewString(),
		InterviewID: cs.interview.ID,
		Role:        storage.RoleManager,
		Content:     content,
	}); err != nil {
		return nil, fmt.Errorf("saving skip message: %w", err)
	}

	last, err := e.store.LastBotQuestion(cs.interview.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// No question was ever posed: nothing to mark skipped.
	case err != nil:
		return nil, fmt.Errorf("locating skipped question: %w", err)
	default:
		inserted, err := e.store.InsertAnswer(storage.Answer{
			ID:           uuid.NewString(),
			InterviewID:  cs.interview.ID,
			TopicNumber:  last.TopicNumber,
			QuestionText: last.QuestionText,
			Skipped:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("recording skip: %w", err)
		}
		if inserted {
			if err := e.store.IncrementSkipped(cs.interview.ID); err != nil {
				return nil, fmt.Errorf("counting skip: %w", err)
			}
		}
	}

	e.updateFallbackConfidence(cs)

	d := Decide(nil, cs.remaining, cs.interview.SelectedTopics, cs.currentTopic, false)
	return e.emit(cs, d, nil)
}

// handlePause acknowledges the stop without advancing; the share link
// resumes the interview where it left off.
func (e *Engine) handlePause(cs *cycleState, message string) (*Result, error) {
	if message != "" {
		if err := e.store.AppendMessage(storage.ChatMessage{
			ID:          uuid.NewString(),
			InterviewID: cs.interview.ID,
			Role:        storage.RoleManager,
			Content:     message,
		}); err != nil {
			return nil, fmt.Errorf("saving pause message: %w", err)
		}
	}
	if err := e.store.AppendMessage(storage.ChatMessage{
		ID:          uuid.NewString(),
		InterviewID: cs.interview.ID,
		Role:        storage.RoleBot,
		Content:     pauseMessage,
	}); err != nil {
		return nil, fmt.Errorf("saving pause acknowledgment: %w", err)
	}

	res := e.buildResult(cs, Decision{Action: advisor.ActionAsk, TopicNumber: cs.currentTopic})
	res.BotMessage = pauseMessage
	if _, q, ok := nextRemaining(cs.remaining, cs.interview.SelectedTopics, cs.currentTopic); ok {
		res.NextQuestionText = q.QuestionText
	}
	return res, nil
}

// handleAnswer is the main branch: persist the answer, consult the advisor,
// reconcile, attribute the answer to the question that prompted it, and
// update the topic state.
func (e *Engine) handleAnswer(ctx context.Context, cs *cycleState, message string) (*Result, error) {
	saved := storage.ChatMessage{
		ID:          uuid.NewString(),
		InterviewID: cs.interview.ID,
		Role:        storage.RoleManager,
		Content:     message,
	}
	if message != "" {
		if err := e.store.AppendMessage(saved); err != nil {
			return nil, fmt.Errorf("saving answer message: %w", err)
		}
		if err := e.store.IncrementAnswered(cs.interview.ID); err != nil {
			return nil, fmt.Errorf("counting answer: %w", err)
		}
	}

	opinion := e.consult(ctx, cs, message)

	// Newly marked coverage takes effect before the decision so an
	// override never re-asks something the respondent just covered.
	if opinion != nil && len(opinion.MarkQuestionsCovered) > 0 {
		cs.remaining = pruneCovered(cs.remaining, opinion.MarkQuestionsCovered)
	}

	original, followUpTaken := e.followUpState(cs.messages)
	d := Decide(opinion, cs.remaining, cs.interview.SelectedTopics, cs.currentTopic, followUpTaken)
	if d.Overrode {
		slog.Info("advisor END overridden, questions remain",
			"interview", cs.interview.ID, "topic", d.TopicNumber)
	}
	if d.IsFollowUp {
		d.OriginalQuestionText = original
	}

	// Attribution runs over the history strictly before the saved message,
	// so a bot message persisted concurrently cannot steal the answer.
	if message != "" {
		if target, ok := attributeQuestion(cs.messages); ok {
			inserted, err := e.store.InsertAnswer(storage.Answer{
				ID:           uuid.NewString(),
				InterviewID:  cs.interview.ID,
				TopicNumber:  target.TopicNumber,
				QuestionText: target.QuestionText,
				AnswerText:   message,
			})
			if err != nil {
				return nil, fmt.Errorf("recording answer: %w", err)
			}
			if !inserted {
				slog.Debug("duplicate answer ignored",
					"interview", cs.interview.ID, "question", target.QuestionText)
			}
		}
	}

	if opinion != nil {
		e.applyOpinion(cs, opinion)
	} else {
		e.updateFallbackConfidence(cs)
	}

	return e.emit(cs, d, opinion)
}

// consult asks the advisor for an opinion; every failure degrades to nil.
func (e *Engine) consult(ctx context.Context, cs *cycleState, message string) *advisor.Response {
	if e.advisor == nil {
		return nil
	}

	remainingTexts := make([]string, 0, len(cs.remaining[cs.currentTopic]))
	for _, q := range cs.remaining[cs.currentTopic] {
		remainingTexts = append(remainingTexts, q.QuestionText)
	}

	recent := cs.messages
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	recentMsgs := make([]advisor.Message, 0, len(recent))
	for _, m := range recent {
		recentMsgs = append(recentMsgs, advisor.Message{Role: m.Role, Content: m.Content})
	}

	ac := advisor.Context{
		CurrentTopic:       cs.currentTopic,
		RemainingQuestions: remainingTexts,
		RecentMessages:     recentMsgs,
	}
	if ts, ok := topicState(cs.states, cs.currentTopic); ok {
		ac.TopicState = &advisor.TopicState{Confidence: ts.Confidence, CoveredPoints: ts.CoveredPoints}
	}

	opinion, err := e.advisor.NextAction(ctx, message, ActionAnswer, ac)
	if err != nil {
		slog.Warn("advisor unavailable, falling back",
			"interview", cs.interview.ID, "error", err)
		return nil
	}
	return opinion
}

// followUpState finds the most recent non-follow-up bot question and whether
// a follow-up for it already exists.
func (e *Engine) followUpState(messages []storage.ChatMessage) (original string, taken bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == storage.RoleBot && !m.IsFollowUp && m.QuestionText != "" {
			original = m.QuestionText
			break
		}
	}
	if original == "" {
		return "", false
	}
	for _, m := range messages {
		if m.IsFollowUp && m.OriginalQuestionText == original {
			return original, true
		}
	}
	return original, false
}

// attributeQuestion searches the history backward for the question the
// respondent just answered, preferring a direct catalog question over a
// follow-up.
func attributeQuestion(messages []storage.ChatMessage) (storage.ChatMessage, bool) {
	var fallback storage.ChatMessage
	var haveFallback bool
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != storage.RoleBot || m.QuestionText == "" {
			continue
		}
		if !m.IsFollowUp {
			return m, true
		}
		if !haveFallback {
			fallback = m
			haveFallback = true
		}
	}
	return fallback, haveFallback
}

// applyOpinion overwrites confidence with the advisor's value and merges the
// filtered covered points into the current topic state.
func (e *Engine) applyOpinion(cs *cycleState, opinion *advisor.Response) {
	ts, ok := topicState(cs.states, cs.currentTopic)
	if !ok {
		return
	}
	ts.Confidence = opinion.TopicConfidence
	ts.CoveredPoints = confidence.MergeCovered(ts.CoveredPoints, opinion.CoveredPoints, e.rules)
	if err := e.store.UpdateTopicState(ts); err != nil {
		slog.Warn("topic state update failed",
			"interview", cs.interview.ID, "topic", cs.currentTopic, "error", err)
		return
	}
	replaceState(cs.states, ts)
}

// updateFallbackConfidence recomputes the current topic's confidence from
// answer progress; it never decreases.
func (e *Engine) updateFallbackConfidence(cs *cycleState) {
	ts, ok := topicState(cs.states, cs.currentTopic)
	if !ok {
		return
	}

	answers, err := e.store.ListAnswers(cs.interview.ID)
	if err != nil {
		slog.Warn("fallback confidence skipped",
			"interview", cs.interview.ID, "error", err)
		return
	}

	enabled := make(map[string]struct{})
	total := 0
	for _, q := range cs.questions {
		if q.TopicNumber == cs.currentTopic {
			enabled[q.QuestionText] = struct{}{}
			total++
		}
	}
	answered := 0
	for _, a := range answers {
		if a.Skipped || a.TopicNumber != cs.currentTopic {
			continue
		}
		if _, ok := enabled[a.QuestionText]; ok {
			answered++
		}
	}

	next := confidence.Fallback(ts.Confidence, answered, total)
	if next == ts.Confidence {
		return
	}
	ts.Confidence = next
	if err := e.store.UpdateTopicState(ts); err != nil {
		slog.Warn("topic state update failed",
			"interview", cs.interview.ID, "topic", cs.currentTopic, "error", err)
		return
	}
	replaceState(cs.states, ts)
}

// emit persists the outbound bot message for the decision and builds the
// cycle result. END triggers completion.
func (e *Engine) emit(cs *cycleState, d Decision, opinion *advisor.Response) (*Result, error) {
	if d.Action == advisor.ActionEnd {
		return e.finish(cs, d, opinion)
	}

	content := d.BotMessage
	if content == "" {
		content = d.QuestionText
	}

	ts, _ := topicState(cs.states, d.TopicNumber)
	meta := &storage.MessageMeta{Action: d.Action, TopicConfidence: ts.Confidence}
	if opinion != nil {
		meta.CoveredQuestions = opinion.MarkQuestionsCovered
	}

	if err := e.store.AppendMessage(storage.ChatMessage{
		ID:                   uuid.NewString(),
		InterviewID:          cs.interview.ID,
		Role:                 storage.RoleBot,
		Content:              content,
		TopicNumber:          d.TopicNumber,
		QuestionText:         d.QuestionText,
		IsFollowUp:           d.IsFollowUp,
		OriginalQuestionText: d.OriginalQuestionText,
		Meta:                 meta,
	}); err != nil {
		return nil, fmt.Errorf("saving bot message: %w", err)
	}

	res := e.buildResult(cs, d)
	res.BotMessage = content
	if opinion != nil && len(opinion.QuickReplies) > 0 {
		res.QuickReplies = opinion.QuickReplies
	}
	return res, nil
}

// finish closes the interview: closing message, completion status set once,
// summary email enqueued fire-and-forget.
func (e *Engine) finish(cs *cycleState, d Decision, opinion *advisor.Response) (*Result, error) {
	content := d.BotMessage
	if content == "" {
		content = closingMessage
	}

	// Marked coverage persists with the closing message so a replayed cycle
	// sees the same remaining set.
	meta := &storage.MessageMeta{Action: advisor.ActionEnd}
	if opinion != nil {
		meta.CoveredQuestions = opinion.MarkQuestionsCovered
	}

	if err := e.store.AppendMessage(storage.ChatMessage{
		ID:          uuid.NewString(),
		InterviewID: cs.interview.ID,
		Role:        storage.RoleBot,
		Content:     content,
		Meta:        meta,
	}); err != nil {
		return nil, fmt.Errorf("saving closing message: %w", err)
	}

	if cs.interview.Status != storage.StatusCompleted {
		if err := e.store.UpdateInterviewStatus(cs.interview.ID, storage.StatusCompleted); err != nil {
			return nil, fmt.Errorf("completing interview: %w", err)
		}
		cs.interview.Status = storage.StatusCompleted
		e.enqueueSummary(cs.interview.ID)
	}

	res := e.buildResult(cs, d)
	res.BotMessage = content
	res.QuickReplies = []string{}
	res.TopicConfidence = 1
	res.CoveredPoints = []string{}
	return res, nil
}

// enqueueSummary schedules the summary email. A single attempt, never
// retried, and failure to enqueue never fails the cycle.
func (e *Engine) enqueueSummary(interviewID string) {
	payload, _ := json.Marshal(map[string]string{"interviewId": interviewID})
	err := e.store.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        SummaryJobType,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	})
	if err != nil {
		slog.Error("summary email enqueue failed", "interview", interviewID, "error", err)
	}
}

func (e *Engine) buildResult(cs *cycleState, d Decision) *Result {
	ts, _ := topicState(cs.states, d.TopicNumber)
	res := &Result{
		NextAction:       d.Action,
		TopicNumber:      d.TopicNumber,
		NextQuestionText: d.QuestionText,
		QuickReplies:     defaultQuickReplies(),
		TopicConfidence:  ts.Confidence,
		CoveredPoints:    ts.CoveredPoints,
	}
	if res.CoveredPoints == nil {
		res.CoveredPoints = []string{}
	}
	res.Progress = e.progress(cs)
	return res
}

// progress counts unique answered/skipped question texts against the enabled
// catalog of the selected topics.
func (e *Engine) progress(cs *cycleState) Progress {
	enabled := make(map[string]struct{}, len(cs.questions))
	for _, q := range cs.questions {
		enabled[q.QuestionText] = struct{}{}
	}
	p := Progress{Total: len(enabled)}

	answers, err := e.store.ListAnswers(cs.interview.ID)
	if err != nil {
		slog.Warn("progress computation degraded",
			"interview", cs.interview.ID, "error", err)
		return p
	}

	seen := make(map[string]struct{})
	for _, a := range answers {
		if _, ok := enabled[a.QuestionText]; !ok {
			continue
		}
		if _, dup := seen[a.QuestionText]; dup {
			continue
		}
		seen[a.QuestionText] = struct{}{}
		if a.Skipped {
			p.Skipped++
		} else {
			p.Answered++
		}
	}
	return p
}

func pruneCovered(remaining map[int][]storage.Question, covered []string) map[int][]storage.Question {
	set := make(map[string]struct{}, len(covered))
	for _, c := range covered {
		set[c] = struct{}{}
	}
	pruned := make(map[int][]storage.Question, len(remaining))
	for topic, qs := range remaining {
		kept := qs[:0:0]
		for _, q := range qs {
			if _, ok := set[q.QuestionText]; !ok {
				kept = append(kept, q)
			}
		}
		if len(kept) > 0 {
			pruned[topic] = kept
		}
	}
	return pruned
}

func topicState(states []storage.TopicState, topic int) (storage.TopicState, bool) {
	for _, ts := range states {
		if ts.TopicNumber == topic {
			return ts, true
		}
	}
	return storage.TopicState{TopicNumber: topic}, false
}

func replaceState(states []storage.TopicState, ts storage.TopicState) {
	for i := range states {
		if states[i].TopicNumber == ts.TopicNumber {
			states[i] = ts
			return
		}
	}
}
