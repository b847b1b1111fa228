package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestNextActionDisabledClient(t *testing.T) {
	c := NewClient("", "")
	resp, err := c.NextAction(context.Background(), "hi", "answer", Context{})
	if err != nil {
		t.Fatalf("disabled client returned error: %v", err)
	}
	if resp != nil {
		t.Errorf("disabled client returned a response: %+v", resp)
	}
}

func TestNextActionParsesCompletion(t *testing.T) {
	var gotAuth, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		fmt.Fprint(w, completionBody(wellFormed))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	resp, err := c.NextAction(context.Background(), "תשובה", "answer", Context{CurrentTopic: 2})
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if resp.NextAction != ActionAsk || resp.TopicNumber != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReferer == "" {
		t.Error("HTTP-Referer header missing")
	}
}

func TestNextActionRetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completionBody(wellFormed))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.NextAction(ctx, "תשובה", "answer", Context{})
	if err != nil {
		t.Fatalf("NextAction after retries: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response after backoff")
	}
	if calls != 3 {
		t.Errorf("upstream called %d times, want 3", calls)
	}
}

func TestNextActionNonRetryableStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad-key", "test-model", srv.URL)
	if _, err := c.NextAction(context.Background(), "hi", "answer", Context{}); err == nil {
		t.Fatal("expected error on 401")
	}
	if calls != 1 {
		t.Errorf("401 retried: %d calls", calls)
	}
}

func TestGenerateQuestionsRetriesParseFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, completionBody("I could not produce questions, sorry."))
			return
		}
		fmt.Fprint(w, completionBody(`{"questions": ["שאלה א", "שאלה ב", "שאלה ג"]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	qs, err := c.GenerateQuestions(ctx, "מעבר לעבודה מרחוק", "", 1, "תקשורת", "")
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Errorf("got %d questions, want 3", len(qs))
	}
	if calls != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
}
