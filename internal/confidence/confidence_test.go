package confidence

import (
	"testing"

	"github.com/raayon/raayon/internal/storage"
)

func TestSelectCurrentTopicFirstBelowThreshold(t *testing.T) {
	states := []storage.TopicState{
		{TopicNumber: 2, Confidence: 0.9},
		{TopicNumber: 5, Confidence: 0.3},
		{TopicNumber: 7, Confidence: 0.1},
	}
	if got := SelectCurrentTopic([]int{2, 5, 7}, states); got != 5 {
		t.Errorf("SelectCurrentTopic = %d, want 5", got)
	}
}

func TestSelectCurrentTopicAllExplored(t *testing.T) {
	states := []storage.TopicState{
		{TopicNumber: 2, Confidence: 0.8},
		{TopicNumber: 5, Confidence: 0.7},
	}
	if got := SelectCurrentTopic([]int{2, 5}, states); got != 2 {
		t.Errorf("SelectCurrentTopic = %d, want first selected topic 2", got)
	}
}

func TestSelectCurrentTopicMissingStateCountsAsZero(t *testing.T) {
	if got := SelectCurrentTopic([]int{4, 6}, nil); got != 4 {
		t.Errorf("SelectCurrentTopic with no states = %d, want 4", got)
	}
}

func TestIsLikelyQuestion(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		text string
		want bool
	}{
		{"מה הצעד הבא שלך?", true},
		{"איך אתה מתמודד עם קונפליקטים", true},
		{"How do you prioritize tasks", true},
		{"does the team review each release", true},
		{"the team can deploy without approval?", true},
		{"Anyone can trigger a rollback today", true},
		{"קצר", true}, // below minimum fact length
		{"delegates routine decisions to two senior reports", false},
		{"מקיים שיחה שבועית קבועה עם כל חבר צוות", false},
	}
	for _, tc := range cases {
		if got := rules.IsLikelyQuestion(tc.text); got != tc.want {
			t.Errorf("IsLikelyQuestion(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestMergeCoveredFiltersAndDeduplicates(t *testing.T) {
	rules := DefaultRules()
	existing := []string{"delegates routine decisions"}
	incoming := []string{
		"what happens when deadlines slip?",
		"delegates routine decisions",
		"holds weekly one-on-ones with direct reports",
		"  ",
	}

	merged := MergeCovered(existing, incoming, rules)
	want := []string{"delegates routine decisions", "holds weekly one-on-ones with direct reports"}
	if len(merged) != len(want) {
		t.Fatalf("merged = %v, want %v", merged, want)
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("merged[%d] = %q, want %q", i, merged[i], want[i])
		}
	}
}

func TestFallbackFormula(t *testing.T) {
	cases := []struct {
		current  float64
		answered int
		total    int
		want     float64
	}{
		{0, 1, 3, 0.4},
		{0, 3, 3, 0.9}, // capped below 1.2
		{0, 0, 0, 0},   // total clamped to 1
		{0.5, 1, 3, 0.5},
	}
	for _, tc := range cases {
		got := Fallback(tc.current, tc.answered, tc.total)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Fallback(%v, %d, %d) = %v, want %v", tc.current, tc.answered, tc.total, got, tc.want)
		}
	}
}

// Fallback confidence never decreases as answers accumulate.
func TestFallbackMonotone(t *testing.T) {
	current := 0.0
	for answered := 0; answered <= 5; answered++ {
		next := Fallback(current, answered, 3)
		if next < current {
			t.Fatalf("confidence dropped at answered=%d: %v -> %v", answered, current, next)
		}
		current = next
	}
	if current != FallbackCap {
		t.Errorf("fully answered topic capped at %v, want %v", current, FallbackCap)
	}
}
