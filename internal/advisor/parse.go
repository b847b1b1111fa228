package advisor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ParseResponse extracts a Response from raw model output. Small models
// frequently wrap JSON in markdown code fences, prepend conversational
// filler, or truncate the object mid-way, so parsing is a repair chain:
//  1. Strip markdown code fences if present (```json ... ```)
//  2. Extract the substring between the first { and last }
//  3. json.Unmarshal; on failure, balance unclosed brackets and retry
//
// A response that parses but fails schema validation is rejected the same
// way as unparseable output.
func ParseResponse(raw string) (*Response, error) {
	s := extractJSON(raw)
	if s == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		balanced := balanceBrackets(s)
		if err2 := json.Unmarshal([]byte(balanced), &resp); err2 != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		slog.Debug("advisor response repaired by bracket balancing")
	}

	if !resp.Valid() {
		return nil, fmt.Errorf("response failed validation: action=%q", resp.NextAction)
	}
	return &resp, nil
}

var questionsArrayRe = regexp.MustCompile(`(?s)"questions"\s*:\s*\[(.*?)\]`)
var quotedStringRe = regexp.MustCompile(`"([^"]+)"`)

// ParseQuestions extracts a list of generated questions from raw model
// output. Accepts {"questions": [...]}, a bare array, or any array-valued
// field; as a last resort it scrapes quoted strings out of a truncated
// "questions" array.
func ParseQuestions(raw string) ([]string, error) {
	s := extractJSON(raw)
	if s == "" {
		return nil, fmt.Errorf("no JSON in response")
	}

	questions, err := decodeQuestions(s)
	if err != nil {
		balanced := balanceBrackets(s)
		questions, err = decodeQuestions(balanced)
		if err != nil {
			if scraped := scrapeQuestionsArray(balanced); len(scraped) > 0 {
				slog.Debug("questions scraped from truncated response", "count", len(scraped))
				questions = scraped
			} else {
				return nil, err
			}
		} else {
			slog.Debug("question response repaired by bracket balancing")
		}
	}

	cleaned := make([]string, 0, len(questions))
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		cleaned = append(cleaned, q)
		if len(cleaned) == 4 {
			break
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no valid questions in response")
	}
	return cleaned, nil
}

func decodeQuestions(s string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("unmarshal question array: %w", err)
		}
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal question object: %w", err)
	}

	// Prefer the documented field, then fall back to any array value.
	for _, key := range []string{"questions", "questionList"} {
		if v, ok := obj[key]; ok {
			var arr []string
			if err := json.Unmarshal(v, &arr); err == nil {
				return arr, nil
			}
		}
	}
	for _, v := range obj {
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil && len(arr) > 0 {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no question array in response")
}

// scrapeQuestionsArray pulls quoted strings out of a "questions" array that
// is too mangled for the JSON decoder.
func scrapeQuestionsArray(s string) []string {
	m := questionsArrayRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	var questions []string
	for _, q := range quotedStringRe.FindAllStringSubmatch(m[1], -1) {
		questions = append(questions, q[1])
	}
	return questions
}

// extractJSON strips code fences and surrounding prose, returning the JSON
// payload or "" when none is found.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "[") {
		return s
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end > start {
		return s[start : end+1]
	}
	// No closing brace: hand the truncated tail to the bracket balancer.
	return s[start:]
}

// balanceBrackets appends the closers a truncated JSON payload is missing.
func balanceBrackets(s string) string {
	s = strings.TrimSpace(s)
	openBraces := strings.Count(s, "{") - strings.Count(s, "}")
	openBrackets := strings.Count(s, "[") - strings.Count(s, "]")
	if openBrackets > 0 {
		s += strings.Repeat("]", openBrackets)
	}
	if openBraces > 0 {
		s += strings.Repeat("}", openBraces)
	}
	return s
}
