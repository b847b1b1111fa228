package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raayon/raayon/internal/progression"
	"github.com/raayon/raayon/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// stateMessagesLimit caps how much history the bootstrap endpoint returns.
const stateMessagesLimit = 10

// QuestionGenerator produces challenge-bound questions for one topic.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, challengeName, challengeDescription string, topicNumber int, topicLabel, topicDescription string) ([]string, error)
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Store     *storage.Store
	Engine    *progression.Engine
	Generator QuestionGenerator // optional; challenge creation skips generation when nil
	Token     string
}

// NewHandler builds the full router: health, respondent chat routes keyed by
// share token, and the bearer-authenticated admin routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/state", handleChatState(deps))
		r.Post("/message", handleChatMessage(deps))
		r.Post("/complete", handleChatComplete(deps))
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		mountAdminRoutes(r, deps)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type tokenRequest struct {
	ShareToken string `json:"shareToken"`
}

type messageRequest struct {
	ShareToken string `json:"shareToken"`
	Message    string `json:"message"`
	Action     string `json:"action"`
}

type interviewSummary struct {
	ID             string `json:"id"`
	ManagerName    string `json:"managerName"`
	ManagerRole    string `json:"managerRole,omitempty"`
	Status         string `json:"status"`
	SelectedTopics []int  `json:"selectedTopics"`
	ChallengeID    string `json:"challengeId,omitempty"`
}

type catalogEntry struct {
	TopicNumber  int    `json:"topicNumber"`
	QuestionText string `json:"questionText"`
}

type topicStateView struct {
	TopicNumber   int      `json:"topicNumber"`
	Confidence    float64  `json:"confidence"`
	CoveredPoints []string `json:"coveredPoints"`
}

type messageView struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type stateResponse struct {
	Interview        interviewSummary     `json:"interview"`
	Catalog          []catalogEntry       `json:"catalog"`
	TopicStates      []topicStateView     `json:"topicStates"`
	Progress         progression.Progress `json:"progress"`
	CurrentTopic     int                  `json:"currentTopic"`
	NextQuestionText string               `json:"nextQuestionText,omitempty"`
	Messages         []messageView        `json:"messages"`
}

func handleChatState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ShareToken == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "shareToken is required")
			return
		}

		sn, err := deps.Engine.State(req.ShareToken)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load state: %v", err)
			return
		}

		resp := stateResponse{
			Interview: interviewSummary{
				ID:             sn.Interview.ID,
				ManagerName:    sn.Interview.ManagerName,
				ManagerRole:    sn.Interview.ManagerRole,
				Status:         sn.Interview.Status,
				SelectedTopics: sn.Interview.SelectedTopics,
				ChallengeID:    sn.Interview.ChallengeID,
			},
			Catalog:          make([]catalogEntry, 0, len(sn.Questions)),
			TopicStates:      make([]topicStateView, 0, len(sn.States)),
			Progress:         sn.Progress,
			CurrentTopic:     sn.CurrentTopic,
			NextQuestionText: sn.NextQuestionText,
			Messages:         []messageView{},
		}
		for _, q := range sn.Questions {
			resp.Catalog = append(resp.Catalog, catalogEntry{TopicNumber: q.TopicNumber, QuestionText: q.QuestionText})
		}
		for _, ts := range sn.States {
			v := topicStateView{TopicNumber: ts.TopicNumber, Confidence: ts.Confidence, CoveredPoints: ts.CoveredPoints}
			if v.CoveredPoints == nil {
				v.CoveredPoints = []string{}
			}
			resp.TopicStates = append(resp.TopicStates, v)
		}

		// Tail of the history, oldest-first.
		msgs := sn.Messages
		if len(msgs) > stateMessagesLimit {
			msgs = msgs[len(msgs)-stateMessagesLimit:]
		}
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, messageView{
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			})
		}

		writeJSON(w, resp)
	}
}

func handleChatMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ShareToken == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "shareToken is required")
			return
		}
		switch req.Action {
		case "", progression.ActionAnswer, progression.ActionSkip, progression.ActionPause:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown action %q", req.Action)
			return
		}

		res, err := deps.Engine.HandleMessage(r.Context(), req.ShareToken, req.Message, req.Action)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process message: %v", err)
			return
		}

		writeJSON(w, res)
	}
}

func handleChatComplete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ShareToken == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "shareToken is required")
			return
		}

		iv, err := deps.Engine.Complete(req.ShareToken)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete interview: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": iv.Status})
	}
}

// decodeBody reads a JSON request body with the standard size cap, writing
// the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
