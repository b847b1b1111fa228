package advisor

import (
	"testing"
)

const wellFormed = `{
	"bot_message": "מה הצעד הבא?",
	"topic_number": 2,
	"next_action": "ASK",
	"next_question_text": "מה הצעד הבא?",
	"topic_confidence": 0.4,
	"covered_points": ["נקודה"],
	"quick_replies": ["המשך","דלג"]
}`

func TestParseResponseStrict(t *testing.T) {
	resp, err := ParseResponse(wellFormed)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.NextAction != ActionAsk || resp.TopicNumber != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.TopicConfidence != 0.4 {
		t.Errorf("TopicConfidence = %v, want 0.4", resp.TopicConfidence)
	}
}

func TestParseResponseCodeFence(t *testing.T) {
	resp, err := ParseResponse("```json\n" + wellFormed + "\n```")
	if err != nil {
		t.Fatalf("ParseResponse with fence: %v", err)
	}
	if resp.NextAction != ActionAsk {
		t.Errorf("unexpected action: %q", resp.NextAction)
	}
}

func TestParseResponseSurroundingProse(t *testing.T) {
	raw := "Sure, here is the JSON you asked for:\n" + wellFormed + "\nHope this helps!"
	resp, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse with prose: %v", err)
	}
	if resp.BotMessage == "" {
		t.Error("bot message lost")
	}
}

func TestParseResponseTruncated(t *testing.T) {
	truncated := `{"bot_message": "שאלה", "topic_number": 1, "next_action": "ASK", "topic_confidence": 0.2, "covered_points": ["a", "b"`
	resp, err := ParseResponse(truncated)
	if err != nil {
		t.Fatalf("ParseResponse truncated: %v", err)
	}
	if len(resp.CoveredPoints) != 2 {
		t.Errorf("covered points = %v, want 2 entries", resp.CoveredPoints)
	}
}

func TestParseResponseRejectsBadSchema(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"bot_message": "", "next_action": "ASK", "topic_confidence": 0.5}`,
		`{"bot_message": "hi", "next_action": "DANCE", "topic_confidence": 0.5}`,
		`{"bot_message": "hi", "next_action": "ASK", "topic_confidence": 1.5}`,
	}
	for _, raw := range cases {
		if _, err := ParseResponse(raw); err == nil {
			t.Errorf("ParseResponse(%q) accepted invalid input", raw)
		}
	}
}

func TestParseQuestionsForms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"object", `{"questions": ["א", "ב", "ג"]}`, 3},
		{"bare array", `["א", "ב", "ג"]`, 3},
		{"alternate key", `{"questionList": ["א", "ב", "ג"]}`, 3},
		{"any array value", `{"items": ["א", "ב", "ג"]}`, 3},
		{"capped at four", `{"questions": ["1", "2", "3", "4", "5", "6"]}`, 4},
		{"fenced", "```json\n{\"questions\": [\"א\", \"ב\", \"ג\"]}\n```", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qs, err := ParseQuestions(tc.raw)
			if err != nil {
				t.Fatalf("ParseQuestions: %v", err)
			}
			if len(qs) != tc.want {
				t.Errorf("got %d questions, want %d: %v", len(qs), tc.want, qs)
			}
		})
	}
}

func TestParseQuestionsTruncatedScrape(t *testing.T) {
	raw := `{"questions": ["שאלה ראשונה", "שאלה שנייה", "שאל`
	qs, err := ParseQuestions(raw)
	if err != nil {
		t.Fatalf("ParseQuestions truncated: %v", err)
	}
	if len(qs) < 2 {
		t.Errorf("expected at least 2 scraped questions, got %v", qs)
	}
	if qs[0] != "שאלה ראשונה" {
		t.Errorf("first question = %q", qs[0])
	}
}

func TestParseQuestionsEmpty(t *testing.T) {
	for _, raw := range []string{`{"questions": []}`, `{"questions": ["", "  "]}`, `{}`} {
		if _, err := ParseQuestions(raw); err == nil {
			t.Errorf("ParseQuestions(%q) accepted empty input", raw)
		}
	}
}
