package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{
		"idx_questions_topic", "idx_questions_challenge",
		"idx_interview_questions_order", "idx_chat_messages_interview_created",
		"idx_answers_interview_topic", "idx_jobs_status_run_after",
	}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func seedTopic(t *testing.T, s *Store, number int, label string) {
	t.Helper()
	if err := s.CreateTopic(Topic{Number: number, Label: label}); err != nil {
		t.Fatalf("CreateTopic(%d): %v", number, err)
	}
}

func seedQuestion(t *testing.T, s *Store, id string, topic int, text string) {
	t.Helper()
	if err := s.CreateQuestion(Question{ID: id, TopicNumber: topic, QuestionText: text, IsDefault: true}); err != nil {
		t.Fatalf("CreateQuestion(%s): %v", id, err)
	}
}

func TestTopicNumberUniqueness(t *testing.T) {
	s := openTestStore(t)

	seedTopic(t, s, 1, "delegation")
	err := s.CreateTopic(Topic{Number: 1, Label: "duplicate"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate topic number, got %v", err)
	}
}

func TestListTopicsOrdered(t *testing.T) {
	s := openTestStore(t)

	seedTopic(t, s, 3, "feedback")
	seedTopic(t, s, 1, "delegation")
	seedTopic(t, s, 2, "communication")

	topics, err := s.ListTopics()
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("expected 3 topics, got %d", len(topics))
	}
	for i, want := range []int{1, 2, 3} {
		if topics[i].Number != want {
			t.Errorf("topics[%d].Number = %d, want %d", i, topics[i].Number, want)
		}
	}
}

func TestCreateInterviewBundle(t *testing.T) {
	s := openTestStore(t)

	seedTopic(t, s, 1, "delegation")
	seedTopic(t, s, 2, "communication")
	seedQuestion(t, s, "q1", 1, "first question")
	seedQuestion(t, s, "q2", 2, "second question")

	iv := Interview{
		ID:             "iv1",
		AdminEmail:     "admin@example.com",
		ManagerName:    "Dana",
		Status:         StatusNotStarted,
		ShareToken:     "tok-1",
		SelectedTopics: []int{1, 2},
	}
	if err := s.CreateInterview(iv, []string{"q1", "q2"}); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	got, err := s.GetInterviewByToken("tok-1")
	if err != nil {
		t.Fatalf("GetInterviewByToken: %v", err)
	}
	if got.ID != "iv1" || got.ManagerName != "Dana" {
		t.Errorf("unexpected interview: %+v", got)
	}
	if len(got.SelectedTopics) != 2 || got.SelectedTopics[0] != 1 {
		t.Errorf("unexpected selected topics: %v", got.SelectedTopics)
	}

	sess, err := s.GetSession("iv1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.AnsweredCount != 0 || sess.SkippedCount != 0 {
		t.Errorf("fresh session counters not zero: %+v", sess)
	}
	if !sess.StartedAt.IsZero() {
		t.Errorf("fresh session has started_at set: %v", sess.StartedAt)
	}

	states, err := s.ListTopicStates("iv1")
	if err != nil {
		t.Fatalf("ListTopicStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 topic states, got %d", len(states))
	}
	if states[0].Confidence != 0 {
		t.Errorf("fresh topic state confidence = %v, want 0", states[0].Confidence)
	}

	qs, err := s.ListEnabledQuestions("iv1")
	if err != nil {
		t.Fatalf("ListEnabledQuestions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != "q1" || qs[1].ID != "q2" {
		t.Errorf("unexpected enabled questions: %+v", qs)
	}
}

func TestStatusTransitionsFirstWriteWins(t *testing.T) {
	s := openTestStore(t)

	iv := Interview{ID: "iv1", AdminEmail: "a@b.c", ManagerName: "Dana", ShareToken: "tok-1", SelectedTopics: []int{1}}
	if err := s.CreateInterview(iv, nil); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	if err := s.UpdateInterviewStatus("iv1", StatusInProgress); err != nil {
		t.Fatalf("UpdateInterviewStatus: %v", err)
	}
	first, err := s.GetSession("iv1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if first.StartedAt.IsZero() {
		t.Fatal("started_at not stamped on first transition")
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.UpdateInterviewStatus("iv1", StatusInProgress); err != nil {
		t.Fatalf("second UpdateInterviewStatus: %v", err)
	}
	second, err := s.GetSession("iv1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("started_at changed on repeated transition: %v -> %v", first.StartedAt, second.StartedAt)
	}

	if err := s.UpdateInterviewStatus("iv1", StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, _ := s.GetSession("iv1")
	if done.CompletedAt.IsZero() {
		t.Error("completed_at not stamped")
	}
}

func TestDeleteInterviewCascades(t *testing.T) {
	s := openTestStore(t)

	iv := Interview{ID: "iv1", AdminEmail: "a@b.c", ManagerName: "Dana", ShareToken: "tok-1", SelectedTopics: []int{1}}
	if err := s.CreateInterview(iv, nil); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if err := s.AppendMessage(ChatMessage{ID: "m1", InterviewID: "iv1", Role: RoleBot, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := s.InsertAnswer(Answer{ID: "a1", InterviewID: "iv1", TopicNumber: 1, QuestionText: "q"}); err != nil {
		t.Fatalf("InsertAnswer: %v", err)
	}

	if err := s.DeleteInterview("iv1"); err != nil {
		t.Fatalf("DeleteInterview: %v", err)
	}

	if _, err := s.GetInterview("iv1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("interview survived delete: %v", err)
	}
	if _, err := s.GetSession("iv1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived delete: %v", err)
	}
	msgs, err := s.ListMessages("iv1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived delete: %d", len(msgs))
	}
	answers, err := s.ListAnswers("iv1")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("answers survived delete: %d", len(answers))
	}
}

func TestMessageOrderWithinSameInstant(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := s.AppendMessage(ChatMessage{ID: id, InterviewID: "iv1", Role: RoleBot, Content: id, CreatedAt: now}); err != nil {
			t.Fatalf("AppendMessage(%s): %v", id, err)
		}
	}

	msgs, err := s.ListMessages("iv1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %s, want %s", i, msgs[i].ID, want)
		}
	}
}

func TestMessageMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)

	meta := &MessageMeta{Action: "ASK", TopicConfidence: 0.4, CoveredQuestions: []string{"q one"}}
	if err := s.AppendMessage(ChatMessage{ID: "m1", InterviewID: "iv1", Role: RoleBot, Content: "?", TopicNumber: 2, QuestionText: "q one", Meta: meta}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.ListMessages("iv1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	got := msgs[0]
	if got.Meta == nil {
		t.Fatal("meta not persisted")
	}
	if got.Meta.Action != "ASK" || got.Meta.TopicConfidence != 0.4 {
		t.Errorf("unexpected meta: %+v", got.Meta)
	}
	if len(got.Meta.CoveredQuestions) != 1 || got.Meta.CoveredQuestions[0] != "q one" {
		t.Errorf("unexpected covered questions: %v", got.Meta.CoveredQuestions)
	}
}

func TestLastBotQuestionSkipsPlainMessages(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	msgs := []ChatMessage{
		{ID: "m1", InterviewID: "iv1", Role: RoleBot, Content: "welcome", CreatedAt: base},
		{ID: "m2", InterviewID: "iv1", Role: RoleBot, Content: "q?", QuestionText: "q?", TopicNumber: 1, CreatedAt: base.Add(time.Second)},
		{ID: "m3", InterviewID: "iv1", Role: RoleManager, Content: "answer", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m4", InterviewID: "iv1", Role: RoleBot, Content: "thanks", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage(%s): %v", m.ID, err)
		}
	}

	got, err := s.LastBotQuestion("iv1")
	if err != nil {
		t.Fatalf("LastBotQuestion: %v", err)
	}
	if got.ID != "m2" {
		t.Errorf("LastBotQuestion = %s, want m2", got.ID)
	}
}

func TestInsertAnswerIdempotent(t *testing.T) {
	s := openTestStore(t)

	inserted, err := s.InsertAnswer(Answer{ID: "a1", InterviewID: "iv1", TopicNumber: 1, QuestionText: "q one", AnswerText: "first"})
	if err != nil {
		t.Fatalf("first InsertAnswer: %v", err)
	}
	if !inserted {
		t.Fatal("first InsertAnswer reported not inserted")
	}

	inserted, err = s.InsertAnswer(Answer{ID: "a2", InterviewID: "iv1", TopicNumber: 1, QuestionText: "q one", AnswerText: "second"})
	if err != nil {
		t.Fatalf("duplicate InsertAnswer: %v", err)
	}
	if inserted {
		t.Error("duplicate answer was inserted")
	}

	answers, err := s.ListAnswers("iv1")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(answers))
	}
	if answers[0].AnswerText != "first" {
		t.Errorf("duplicate overwrote original: %q", answers[0].AnswerText)
	}

	// Same text under a different interview is a separate answer.
	inserted, err = s.InsertAnswer(Answer{ID: "a3", InterviewID: "iv2", TopicNumber: 1, QuestionText: "q one"})
	if err != nil {
		t.Fatalf("other-interview InsertAnswer: %v", err)
	}
	if !inserted {
		t.Error("same text in another interview rejected")
	}
}

func TestTopicStateUpdate(t *testing.T) {
	s := openTestStore(t)

	iv := Interview{ID: "iv1", AdminEmail: "a@b.c", ManagerName: "Dana", ShareToken: "tok-1", SelectedTopics: []int{4}}
	if err := s.CreateInterview(iv, nil); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	err := s.UpdateTopicState(TopicState{InterviewID: "iv1", TopicNumber: 4, Confidence: 0.75, CoveredPoints: []string{"delegates routine work"}})
	if err != nil {
		t.Fatalf("UpdateTopicState: %v", err)
	}

	states, err := s.ListTopicStates("iv1")
	if err != nil {
		t.Fatalf("ListTopicStates: %v", err)
	}
	if len(states) != 1 || states[0].Confidence != 0.75 {
		t.Errorf("unexpected states: %+v", states)
	}
	if len(states[0].CoveredPoints) != 1 {
		t.Errorf("covered points lost: %v", states[0].CoveredPoints)
	}

	err = s.UpdateTopicState(TopicState{InterviewID: "iv1", TopicNumber: 9, Confidence: 0.5})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown topic state, got %v", err)
	}
}

func TestSessionCounters(t *testing.T) {
	s := openTestStore(t)

	iv := Interview{ID: "iv1", AdminEmail: "a@b.c", ManagerName: "Dana", ShareToken: "tok-1", SelectedTopics: []int{1}}
	if err := s.CreateInterview(iv, nil); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	if err := s.IncrementAnswered("iv1"); err != nil {
		t.Fatalf("IncrementAnswered: %v", err)
	}
	if err := s.IncrementAnswered("iv1"); err != nil {
		t.Fatalf("IncrementAnswered: %v", err)
	}
	if err := s.IncrementSkipped("iv1"); err != nil {
		t.Fatalf("IncrementSkipped: %v", err)
	}

	sess, err := s.GetSession("iv1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.AnsweredCount != 2 || sess.SkippedCount != 1 {
		t.Errorf("counters = (%d, %d), want (2, 1)", sess.AnsweredCount, sess.SkippedCount)
	}
}

func TestChallengeDeleteRemovesQuestions(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateChallenge(Challenge{ID: "c1", Name: "remote team", TopicNumbers: []int{1, 2}}); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := s.CreateQuestion(Question{ID: "q1", TopicNumber: 1, QuestionText: "generated", ChallengeID: "c1"}); err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}

	if err := s.DeleteChallenge("c1"); err != nil {
		t.Fatalf("DeleteChallenge: %v", err)
	}

	if _, err := s.GetChallenge("c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("challenge survived delete: %v", err)
	}
	qs, err := s.ListChallengeQuestions("c1")
	if err != nil {
		t.Fatalf("ListChallengeQuestions: %v", err)
	}
	if len(qs) != 0 {
		t.Errorf("challenge questions survived delete: %d", len(qs))
	}
}

// TestJobLifecycle exercises enqueue, claim, fail with retry, and completion.
func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "send_summary", PayloadJSON: `{"interviewId":"iv1"}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	j, err := s.ClaimNextJob([]string{"send_summary"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if j == nil || j.ID != "j1" {
		t.Fatalf("expected to claim j1, got %+v", j)
	}
	if j.Status != "running" {
		t.Errorf("claimed job status = %q, want running", j.Status)
	}

	// Already claimed: nothing left.
	j2, err := s.ClaimNextJob([]string{"send_summary"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if j2 != nil {
		t.Errorf("claimed a running job: %+v", j2)
	}

	// MaxAttempts=1 means one failure is terminal.
	if err := s.FailJob("j1", "smtp down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("querying job status: %v", err)
	}
	if status != "failed" {
		t.Errorf("job status after exhausted attempts = %q, want failed", status)
	}
}
