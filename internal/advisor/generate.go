package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const generateAttempts = 3

// GenerateQuestions asks the model for 3-4 Hebrew guiding questions linking
// one topic to a challenge. Rate limits and parse failures are retried up to
// generateAttempts times; any other error fails the call.
func (c *Client) GenerateQuestions(ctx context.Context, challengeName, challengeDescription string, topicNumber int, topicLabel, topicDescription string) ([]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("advisor disabled: no API key")
	}

	prompt := questionGenerationPrompt(challengeName, challengeDescription, topicNumber, topicLabel, topicDescription)

	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 2 * time.Second
			slog.Debug("retrying question generation", "topic", topicNumber, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		content, err := c.complete(ctx, questionGenerationSystem, prompt)
		if err != nil {
			// The completion already retried 429s internally; a rate limit
			// surfacing here means those retries were exhausted.
			lastErr = err
			var rle *rateLimitError
			if errors.As(err, &rle) {
				continue
			}
			return nil, fmt.Errorf("generating questions for topic %d: %w", topicNumber, err)
		}

		questions, err := ParseQuestions(content)
		if err != nil {
			slog.Debug("question generation parse failed", "topic", topicNumber, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		return questions, nil
	}

	return nil, fmt.Errorf("generating questions for topic %d after %d attempts: %w", topicNumber, generateAttempts, lastErr)
}
