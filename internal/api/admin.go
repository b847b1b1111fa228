package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raayon/raayon/internal/progression"
	"github.com/raayon/raayon/internal/storage"
)

// generateConcurrency bounds parallel advisor calls during challenge
// question generation.
const generateConcurrency = 3

func mountAdminRoutes(r chi.Router, deps Deps) {
	r.Route("/api/interviews", func(r chi.Router) {
		r.Get("/", handleListInterviews(deps))
		r.Post("/", handleCreateInterview(deps))
		r.Get("/{id}", handleGetInterview(deps))
		r.Delete("/{id}", handleDeleteInterview(deps))
	})

	r.Route("/api/topics", func(r chi.Router) {
		r.Get("/", handleListTopics(deps))
		r.Post("/", handleCreateTopic(deps))
		r.Put("/{number}", handleUpdateTopic(deps))
		r.Delete("/{number}", handleDeleteTopic(deps))
	})

	r.Route("/api/challenges", func(r chi.Router) {
		r.Get("/", handleListChallenges(deps))
		r.Post("/", handleCreateChallenge(deps))
		r.Get("/{id}", handleGetChallenge(deps))
		r.Put("/{id}", handleUpdateChallenge(deps))
		r.Delete("/{id}", handleDeleteChallenge(deps))
		r.Post("/{id}/questions", handleAddChallengeQuestion(deps))
	})

	r.Route("/api/questions", func(r chi.Router) {
		r.Put("/{id}", handleUpdateQuestion(deps))
		r.Delete("/{id}", handleDeleteQuestion(deps))
	})

	r.Post("/api/email/send", handleSendSummary(deps))
}

// --- interviews ---

type createInterviewRequest struct {
	AdminEmail     string   `json:"adminEmail"`
	ManagerName    string   `json:"managerName"`
	ManagerRole    string   `json:"managerRole"`
	SelectedTopics []int    `json:"selectedTopics"`
	ChallengeID    string   `json:"challengeId"`
	QuestionIDs    []string `json:"questionIds"`
}

type interviewResponse struct {
	ID             string `json:"id"`
	AdminEmail     string `json:"adminEmail"`
	ManagerName    string `json:"managerName"`
	ManagerRole    string `json:"managerRole,omitempty"`
	Status         string `json:"status"`
	ShareToken     string `json:"shareToken"`
	SelectedTopics []int  `json:"selectedTopics"`
	ChallengeID    string `json:"challengeId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func interviewToResponse(iv storage.Interview) interviewResponse {
	return interviewResponse{
		ID:             iv.ID,
		AdminEmail:     iv.AdminEmail,
		ManagerName:    iv.ManagerName,
		ManagerRole:    iv.ManagerRole,
		Status:         iv.Status,
		ShareToken:     iv.ShareToken,
		SelectedTopics: iv.SelectedTopics,
		ChallengeID:    iv.ChallengeID,
		CreatedAt:      iv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func handleListInterviews(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviews, err := deps.Store.ListInterviews()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interviews: %v", err)
			return
		}
		out := make([]interviewResponse, 0, len(interviews))
		for _, iv := range interviews {
			out = append(out, interviewToResponse(iv))
		}
		writeJSON(w, out)
	}
}

func handleCreateInterview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createInterviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ManagerName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "managerName is required")
			return
		}
		if req.AdminEmail == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "adminEmail is required")
			return
		}
		if len(req.SelectedTopics) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "selectedTopics must not be empty")
			return
		}

		topics, err := deps.Store.ListTopics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load topics: %v", err)
			return
		}
		known := make(map[int]struct{}, len(topics))
		for _, t := range topics {
			known[t.Number] = struct{}{}
		}
		for _, n := range req.SelectedTopics {
			if _, ok := known[n]; !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown topic %d", n)
				return
			}
		}

		if req.ChallengeID != "" {
			ch, err := deps.Store.GetChallenge(req.ChallengeID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "challenge %s not found", req.ChallengeID)
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load challenge: %v", err)
				return
			}
			inChallenge := make(map[int]struct{}, len(ch.TopicNumbers))
			for _, n := range ch.TopicNumbers {
				inChallenge[n] = struct{}{}
			}
			for _, n := range req.SelectedTopics {
				if _, ok := inChallenge[n]; !ok {
					httpError(w, http.StatusBadRequest, "invalid_request_error",
						"topic %d is outside the challenge's topic set", n)
					return
				}
			}
		}

		questionIDs := req.QuestionIDs
		if len(questionIDs) == 0 {
			questionIDs, err = defaultQuestionSet(deps.Store, req.SelectedTopics, req.ChallengeID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to assemble catalog: %v", err)
				return
			}
		}

		iv := storage.Interview{
			ID:             uuid.NewString(),
			AdminEmail:     req.AdminEmail,
			ManagerName:    req.ManagerName,
			ManagerRole:    req.ManagerRole,
			Status:         storage.StatusNotStarted,
			ShareToken:     uuid.NewString(),
			SelectedTopics: req.SelectedTopics,
			ChallengeID:    req.ChallengeID,
		}
		if err := deps.Store.CreateInterview(iv, questionIDs); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create interview: %v", err)
			return
		}

		created, err := deps.Store.GetInterview(iv.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load created interview: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, interviewToResponse(created))
	}
}

// defaultQuestionSet enables each selected topic's default questions, plus
// the challenge's generated questions for those topics when bound.
func defaultQuestionSet(store *storage.Store, selectedTopics []int, challengeID string) ([]string, error) {
	var challengeQs []storage.Question
	if challengeID != "" {
		var err error
		challengeQs, err = store.ListChallengeQuestions(challengeID)
		if err != nil {
			return nil, err
		}
	}

	var ids []string
	for _, topic := range selectedTopics {
		defaults, err := store.ListDefaultQuestions(topic)
		if err != nil {
			return nil, err
		}
		for _, q := range defaults {
			ids = append(ids, q.ID)
		}
		for _, q := range challengeQs {
			if q.TopicNumber == topic {
				ids = append(ids, q.ID)
			}
		}
	}
	return ids, nil
}

type interviewDetail struct {
	Interview   interviewResponse     `json:"interview"`
	Session     sessionView           `json:"session"`
	TopicStates []topicStateView      `json:"topicStates"`
	Messages    []storage.ChatMessage `json:"messages"`
	Answers     []storage.Answer      `json:"answers"`
}

type sessionView struct {
	StartedAt     string `json:"startedAt,omitempty"`
	CompletedAt   string `json:"completedAt,omitempty"`
	AnsweredCount int    `json:"answeredCount"`
	SkippedCount  int    `json:"skippedCount"`
}

func handleGetInterview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		iv, err := deps.Store.GetInterview(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interview: %v", err)
			return
		}

		sess, err := deps.Store.GetSession(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		states, err := deps.Store.ListTopicStates(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get topic states: %v", err)
			return
		}
		messages, err := deps.Store.ListMessages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get messages: %v", err)
			return
		}
		answers, err := deps.Store.ListAnswers(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get answers: %v", err)
			return
		}

		detail := interviewDetail{
			Interview:   interviewToResponse(iv),
			TopicStates: make([]topicStateView, 0, len(states)),
			Messages:    messages,
			Answers:     answers,
		}
		detail.Session.AnsweredCount = sess.AnsweredCount
		detail.Session.SkippedCount = sess.SkippedCount
		if !sess.StartedAt.IsZero() {
			detail.Session.StartedAt = sess.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		if !sess.CompletedAt.IsZero() {
			detail.Session.CompletedAt = sess.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		for _, ts := range states {
			v := topicStateView{TopicNumber: ts.TopicNumber, Confidence: ts.Confidence, CoveredPoints: ts.CoveredPoints}
			if v.CoveredPoints == nil {
				v.CoveredPoints = []string{}
			}
			detail.TopicStates = append(detail.TopicStates, v)
		}
		if detail.Messages == nil {
			detail.Messages = []storage.ChatMessage{}
		}
		if detail.Answers == nil {
			detail.Answers = []storage.Answer{}
		}
		writeJSON(w, detail)
	}
}

func handleDeleteInterview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteInterview(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete interview: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- topics ---

type topicRequest struct {
	Number           int      `json:"number"`
	Label            string   `json:"label"`
	Description      string   `json:"description"`
	ExampleQuestions []string `json:"exampleQuestions"`
}

func handleListTopics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := deps.Store.ListTopics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list topics: %v", err)
			return
		}
		if topics == nil {
			topics = []storage.Topic{}
		}
		writeJSON(w, topics)
	}
}

func handleCreateTopic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req topicRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Number <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "number must be positive")
			return
		}
		if req.Label == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "label is required")
			return
		}

		t := storage.Topic{
			Number:           req.Number,
			Label:            req.Label,
			Description:      req.Description,
			ExampleQuestions: req.ExampleQuestions,
		}
		err := deps.Store.CreateTopic(t)
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "invalid_request_error", "topic %d already exists", req.Number)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create topic: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, t)
	}
}

func topicNumberParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid topic number")
		return 0, false
	}
	return n, true
}

func handleUpdateTopic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := topicNumberParam(w, r)
		if !ok {
			return
		}
		var req topicRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Label == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "label is required")
			return
		}

		t := storage.Topic{
			Number:           n,
			Label:            req.Label,
			Description:      req.Description,
			ExampleQuestions: req.ExampleQuestions,
		}
		err := deps.Store.UpdateTopic(t)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "topic not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update topic: %v", err)
			return
		}
		writeJSON(w, t)
	}
}

func handleDeleteTopic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := topicNumberParam(w, r)
		if !ok {
			return
		}
		err := deps.Store.DeleteTopic(n)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "topic not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete topic: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- challenges ---

type challengeRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	TopicNumbers []int  `json:"topicNumbers"`
	CreatedBy    string `json:"createdBy"`
}

type challengeResponse struct {
	Challenge          storage.Challenge  `json:"challenge"`
	Questions          []storage.Question `json:"questions"`
	GeneratedQuestions int                `json:"generatedQuestions"`
}

func handleListChallenges(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenges, err := deps.Store.ListChallenges()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list challenges: %v", err)
			return
		}
		if challenges == nil {
			challenges = []storage.Challenge{}
		}
		writeJSON(w, challenges)
	}
}

func handleCreateChallenge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req challengeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		topics, err := deps.Store.ListTopics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load topics: %v", err)
			return
		}
		if len(topics) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic catalog is empty, seed topics first")
			return
		}

		byNumber := make(map[int]storage.Topic, len(topics))
		for _, t := range topics {
			byNumber[t.Number] = t
		}
		// Empty topic set means the whole catalog.
		if len(req.TopicNumbers) == 0 {
			for _, t := range topics {
				req.TopicNumbers = append(req.TopicNumbers, t.Number)
			}
		}
		for _, n := range req.TopicNumbers {
			if _, ok := byNumber[n]; !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown topic %d", n)
				return
			}
		}

		ch := storage.Challenge{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Description:  req.Description,
			TopicNumbers: req.TopicNumbers,
			CreatedBy:    req.CreatedBy,
		}
		if err := deps.Store.CreateChallenge(ch); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create challenge: %v", err)
			return
		}

		generated := generateChallengeQuestions(r.Context(), deps, ch, byNumber, ch.TopicNumbers)

		questions, err := deps.Store.ListChallengeQuestions(ch.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load generated questions: %v", err)
			return
		}
		if questions == nil {
			questions = []storage.Question{}
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, challengeResponse{Challenge: ch, Questions: questions, GeneratedQuestions: generated})
	}
}

// generateChallengeQuestions asks the advisor for questions, one call per
// topic with bounded parallelism. A topic's failure is logged and skipped;
// the challenge itself is never rolled back over generation errors.
func generateChallengeQuestions(ctx context.Context, deps Deps, ch storage.Challenge, byNumber map[int]storage.Topic, topicNumbers []int) int {
	if deps.Generator == nil || len(topicNumbers) == 0 {
		return 0
	}

	var mu sync.Mutex
	created := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(generateConcurrency)
	for _, n := range topicNumbers {
		t, ok := byNumber[n]
		if !ok {
			continue
		}
		g.Go(func() error {
			texts, err := deps.Generator.GenerateQuestions(gctx, ch.Name, ch.Description, t.Number, t.Label, t.Description)
			if err != nil {
				slog.Warn("question generation failed for topic",
					"challenge", ch.ID, "topic", t.Number, "error", err)
				return nil
			}
			for _, text := range texts {
				q := storage.Question{
					ID:           uuid.NewString(),
					TopicNumber:  t.Number,
					QuestionText: text,
					ChallengeID:  ch.ID,
				}
				if err := deps.Store.CreateQuestion(q); err != nil {
					slog.Warn("saving generated question failed",
						"challenge", ch.ID, "topic", t.Number, "error", err)
					continue
				}
				mu.Lock()
				created++
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return created
}

func handleGetChallenge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ch, err := deps.Store.GetChallenge(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get challenge: %v", err)
			return
		}
		questions, err := deps.Store.ListChallengeQuestions(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list challenge questions: %v", err)
			return
		}
		if questions == nil {
			questions = []storage.Question{}
		}
		writeJSON(w, challengeResponse{Challenge: ch, Questions: questions})
	}
}

func handleUpdateChallenge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req challengeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ch, err := deps.Store.GetChallenge(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get challenge: %v", err)
			return
		}

		topics, err := deps.Store.ListTopics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load topics: %v", err)
			return
		}
		byNumber := make(map[int]storage.Topic, len(topics))
		for _, t := range topics {
			byNumber[t.Number] = t
		}

		if req.Name != "" {
			ch.Name = req.Name
		}
		if req.Description != "" {
			ch.Description = req.Description
		}

		var newTopics []int
		if len(req.TopicNumbers) > 0 {
			for _, n := range req.TopicNumbers {
				if _, ok := byNumber[n]; !ok {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown topic %d", n)
					return
				}
			}
			existing := make(map[int]struct{}, len(ch.TopicNumbers))
			for _, n := range ch.TopicNumbers {
				existing[n] = struct{}{}
			}
			for _, n := range req.TopicNumbers {
				if _, ok := existing[n]; !ok {
					newTopics = append(newTopics, n)
				}
			}
			ch.TopicNumbers = req.TopicNumbers
		}

		if err := deps.Store.UpdateChallenge(ch); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update challenge: %v", err)
			return
		}

		// Only topics newly in scope get generated questions.
		generated := generateChallengeQuestions(r.Context(), deps, ch, byNumber, newTopics)

		questions, err := deps.Store.ListChallengeQuestions(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list challenge questions: %v", err)
			return
		}
		if questions == nil {
			questions = []storage.Question{}
		}
		writeJSON(w, challengeResponse{Challenge: ch, Questions: questions, GeneratedQuestions: generated})
	}
}

func handleDeleteChallenge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteChallenge(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete challenge: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- challenge question management ---

type questionRequest struct {
	TopicNumber  int    `json:"topicNumber"`
	QuestionText string `json:"questionText"`
}

func handleAddChallengeQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req questionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.QuestionText == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "questionText is required")
			return
		}

		ch, err := deps.Store.GetChallenge(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get challenge: %v", err)
			return
		}
		inScope := false
		for _, n := range ch.TopicNumbers {
			if n == req.TopicNumber {
				inScope = true
				break
			}
		}
		if !inScope {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"topic %d is outside the challenge's topic set", req.TopicNumber)
			return
		}

		q := storage.Question{
			ID:           uuid.NewString(),
			TopicNumber:  req.TopicNumber,
			QuestionText: req.QuestionText,
			ChallengeID:  ch.ID,
		}
		if err := deps.Store.CreateQuestion(q); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create question: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, q)
	}
}

func handleUpdateQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req questionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.QuestionText == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "questionText is required")
			return
		}
		err := deps.Store.UpdateQuestionText(id, req.QuestionText)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "question not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update question: %v", err)
			return
		}
		q, err := deps.Store.GetQuestion(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load question: %v", err)
			return
		}
		writeJSON(w, q)
	}
}

func handleDeleteQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteQuestion(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "question not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete question: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- email ---

type sendSummaryRequest struct {
	InterviewID string `json:"interviewId"`
}

// handleSendSummary queues the summary email for a finished (or any)
// interview on demand, single attempt like the automatic one.
func handleSendSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendSummaryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.InterviewID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "interviewId is required")
			return
		}

		if _, err := deps.Store.GetInterview(req.InterviewID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "interview not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interview: %v", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"interviewId": req.InterviewID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        progression.SummaryJobType,
			PayloadJSON: string(payload),
			MaxAttempts: 1,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue email: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "queued", "jobId": job.ID})
	}
}
