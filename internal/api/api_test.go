package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/raayon/raayon/internal/progression"
	"github.com/raayon/raayon/internal/storage"
)

const testToken = "test-token-12345"

type genStub struct {
	perTopic map[int][]string
	errs     map[int]error
}

func (g *genStub) GenerateQuestions(_ context.Context, _, _ string, topicNumber int, _, _ string) ([]string, error) {
	if err := g.errs[topicNumber]; err != nil {
		return nil, err
	}
	return g.perTopic[topicNumber], nil
}

func setupEmptyHandler(t *testing.T, gen QuestionGenerator) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewHandler(Deps{
		Store:     store,
		Engine:    progression.NewEngine(store, nil),
		Generator: gen,
		Token:     testToken,
	})
	return handler, store
}

// setupHandler seeds two topics with three default questions total.
func setupHandler(t *testing.T, gen QuestionGenerator) (http.Handler, *storage.Store) {
	t.Helper()
	handler, store := setupEmptyHandler(t, gen)

	for _, topic := range []storage.Topic{
		{Number: 1, Label: "תקשורת"},
		{Number: 2, Label: "משוב"},
	} {
		if err := store.CreateTopic(topic); err != nil {
			t.Fatalf("CreateTopic(%d): %v", topic.Number, err)
		}
	}
	for i, q := range []storage.Question{
		{TopicNumber: 1, QuestionText: "שאלה 1א", IsDefault: true},
		{TopicNumber: 1, QuestionText: "שאלה 1ב", IsDefault: true},
		{TopicNumber: 2, QuestionText: "שאלה 2א", IsDefault: true},
	} {
		q.ID = fmt.Sprintf("q%d", i+1)
		if err := store.CreateQuestion(q); err != nil {
			t.Fatalf("CreateQuestion(%s): %v", q.ID, err)
		}
	}
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func createInterview(t *testing.T, h http.Handler, body string) interviewResponse {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/interviews", body, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create interview status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var iv interviewResponse
	if err := json.NewDecoder(rr.Body).Decode(&iv); err != nil {
		t.Fatalf("decoding interview: %v", err)
	}
	return iv
}

func TestAdminAuthRequired(t *testing.T) {
	h, _ := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/api/interviews", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/api/interviews", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// Respondent routes authenticate via the share token alone.
func TestChatRoutesSkipBearerAuth(t *testing.T) {
	h, _ := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/state", `{"shareToken":"no-such"}`, ""))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d (not unauthorized)", rr.Code, http.StatusNotFound)
	}
}

func TestCreateInterviewAndState(t *testing.T) {
	h, _ := setupHandler(t, nil)

	iv := createInterview(t, h, `{"adminEmail":"admin@example.com","managerName":"Dana","selectedTopics":[1,2]}`)
	if iv.ShareToken == "" {
		t.Fatal("shareToken is empty")
	}
	if iv.Status != storage.StatusNotStarted {
		t.Errorf("status = %q, want %q", iv.Status, storage.StatusNotStarted)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/state",
		fmt.Sprintf(`{"shareToken":%q}`, iv.ShareToken), ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("state status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var state stateResponse
	if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if len(state.Catalog) != 3 {
		t.Errorf("catalog size = %d, want 3", len(state.Catalog))
	}
	if state.NextQuestionText != "שאלה 1א" {
		t.Errorf("nextQuestionText = %q, want first catalog question", state.NextQuestionText)
	}
	if state.Progress.Total != 3 {
		t.Errorf("progress total = %d, want 3", state.Progress.Total)
	}
	if len(state.Messages) != 0 {
		t.Errorf("messages = %d, want 0 before first contact", len(state.Messages))
	}
	if state.CurrentTopic != 1 {
		t.Errorf("currentTopic = %d, want 1", state.CurrentTopic)
	}
}

func TestCreateInterviewValidation(t *testing.T) {
	h, _ := setupHandler(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing manager name", `{"adminEmail":"a@b.co","selectedTopics":[1]}`},
		{"missing admin email", `{"managerName":"Dana","selectedTopics":[1]}`},
		{"empty topics", `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[]}`},
		{"unknown topic", `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[9]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/api/interviews", tc.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestCreateInterviewChallengeTopicSubset(t *testing.T) {
	h, store := setupHandler(t, nil)

	ch := storage.Challenge{ID: uuid.NewString(), Name: "גיוס צוות", TopicNumbers: []int{1}}
	if err := store.CreateChallenge(ch); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	rr := httptest.NewRecorder()
	body := fmt.Sprintf(`{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1,2],"challengeId":%q}`, ch.ID)
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/interviews", body, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}

	// Topics inside the challenge set are accepted.
	iv := createInterview(t, h, fmt.Sprintf(
		`{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1],"challengeId":%q}`, ch.ID))
	if iv.ChallengeID != ch.ID {
		t.Errorf("challengeId = %q, want %q", iv.ChallengeID, ch.ID)
	}
}

func TestChatMessageOpensConversation(t *testing.T) {
	h, _ := setupHandler(t, nil)
	iv := createInterview(t, h, `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1,2]}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/message",
		fmt.Sprintf(`{"shareToken":%q,"message":"התחל"}`, iv.ShareToken), ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("message status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var res progression.Result
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !strings.Contains(res.BotMessage, "שאלה 1א") {
		t.Errorf("bot_message %q does not pose the first question", res.BotMessage)
	}
	if res.NextAction != "ASK" {
		t.Errorf("next_action = %q, want ASK", res.NextAction)
	}
	if len(res.QuickReplies) == 0 {
		t.Error("quick_replies is empty")
	}

	// State now reflects the opened thread.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/state",
		fmt.Sprintf(`{"shareToken":%q}`, iv.ShareToken), ""))
	var state stateResponse
	if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if state.Interview.Status != storage.StatusInProgress {
		t.Errorf("status = %q, want %q", state.Interview.Status, storage.StatusInProgress)
	}
	if len(state.Messages) != 1 {
		t.Errorf("messages = %d, want the opening message", len(state.Messages))
	}
}

func TestChatMessageRejectsUnknownAction(t *testing.T) {
	h, _ := setupHandler(t, nil)
	iv := createInterview(t, h, `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1]}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/message",
		fmt.Sprintf(`{"shareToken":%q,"action":"restart"}`, iv.ShareToken), ""))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestChatCompleteEnqueuesSummary(t *testing.T) {
	h, store := setupHandler(t, nil)
	iv := createInterview(t, h, `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1]}`)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, "/api/chat/complete",
			fmt.Sprintf(`{"shareToken":%q}`, iv.ShareToken), ""))
		if rr.Code != http.StatusOK {
			t.Fatalf("complete status = %d, body = %s", rr.Code, rr.Body.String())
		}
	}

	got, err := store.GetInterview(iv.ID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusCompleted)
	}

	// Double completion enqueues exactly one summary job.
	job, err := store.ClaimNextJob([]string{progression.SummaryJobType})
	if err != nil || job == nil {
		t.Fatalf("expected a summary job, got job=%v err=%v", job, err)
	}
	if job.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", job.MaxAttempts)
	}
	if second, _ := store.ClaimNextJob([]string{progression.SummaryJobType}); second != nil {
		t.Errorf("unexpected second summary job %s", second.ID)
	}
}

func TestCreateChallengeGeneratesQuestions(t *testing.T) {
	gen := &genStub{
		perTopic: map[int][]string{1: {"שאלת אתגר 1", "שאלת אתגר 2", "שאלת אתגר 3"}},
		errs:     map[int]error{2: errors.New("rate limited")},
	}
	h, _ := setupHandler(t, gen)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/challenges",
		`{"name":"כניסה לתפקיד","description":"מנהלת חדשה","topicNumbers":[1,2]}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp challengeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding challenge: %v", err)
	}
	// Topic 2's failure is isolated; topic 1's questions still land.
	if resp.GeneratedQuestions != 3 {
		t.Errorf("generatedQuestions = %d, want 3", resp.GeneratedQuestions)
	}
	if len(resp.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(resp.Questions))
	}
	for _, q := range resp.Questions {
		if q.TopicNumber != 1 {
			t.Errorf("question %q on topic %d, want 1", q.QuestionText, q.TopicNumber)
		}
		if q.ChallengeID != resp.Challenge.ID {
			t.Errorf("question %q not bound to challenge", q.QuestionText)
		}
	}
}

func TestCreateChallengeRequiresSeededCatalog(t *testing.T) {
	h, _ := setupEmptyHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/challenges", `{"name":"אתגר"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestAddChallengeQuestionOutsideScope(t *testing.T) {
	h, store := setupHandler(t, nil)
	ch := storage.Challenge{ID: uuid.NewString(), Name: "אתגר", TopicNumbers: []int{1}}
	if err := store.CreateChallenge(ch); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/challenges/"+ch.ID+"/questions",
		`{"topicNumber":2,"questionText":"שאלה"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/challenges/"+ch.ID+"/questions",
		`{"topicNumber":1,"questionText":"שאלה"}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Errorf("in-scope status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestUpdateChallengeGeneratesForNewTopicsOnly(t *testing.T) {
	gen := &genStub{perTopic: map[int][]string{
		1: {"ישנה"},
		2: {"חדשה א", "חדשה ב"},
	}}
	h, store := setupHandler(t, gen)

	ch := storage.Challenge{ID: uuid.NewString(), Name: "אתגר", TopicNumbers: []int{1}}
	if err := store.CreateChallenge(ch); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPut, "/api/challenges/"+ch.ID,
		`{"topicNumbers":[1,2]}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp challengeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding challenge: %v", err)
	}
	if resp.GeneratedQuestions != 2 {
		t.Errorf("generatedQuestions = %d, want 2 (topic 2 only)", resp.GeneratedQuestions)
	}
	for _, q := range resp.Questions {
		if q.TopicNumber == 1 {
			t.Errorf("unexpected generation for already-in-scope topic: %q", q.QuestionText)
		}
	}
}

func TestTopicCreateConflict(t *testing.T) {
	h, _ := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/topics",
		`{"number":1,"label":"כפילות"}`, testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestSendSummaryQueued(t *testing.T) {
	h, store := setupHandler(t, nil)
	iv := createInterview(t, h, `{"adminEmail":"a@b.co","managerName":"Dana","selectedTopics":[1]}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/api/email/send",
		fmt.Sprintf(`{"interviewId":%q}`, iv.ID), testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	job, err := store.ClaimNextJob([]string{progression.SummaryJobType})
	if err != nil || job == nil {
		t.Fatalf("expected a queued summary job, got job=%v err=%v", job, err)
	}
	var payload struct {
		InterviewID string `json:"interviewId"`
	}
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.InterviewID != iv.ID {
		t.Errorf("payload interviewId = %q, want %q", payload.InterviewID, iv.ID)
	}
}

func TestDeleteInterviewNotFound(t *testing.T) {
	h, _ := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/api/interviews/no-such", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
