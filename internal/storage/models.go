package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interview lifecycle states.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Chat message roles. "manager" is the human respondent.
const (
	RoleManager = "manager"
	RoleBot     = "bot"
	RoleSystem  = "system"
)

type Interview struct {
	ID             string
	AdminEmail     string
	ManagerName    string
	ManagerRole    string
	Status         string
	ShareToken     string
	SelectedTopics []int
	ChallengeID    string // empty when not bound to a challenge
	CreatedAt      time.Time
}

type Session struct {
	InterviewID   string
	StartedAt     time.Time // zero until the interview starts
	CompletedAt   time.Time // zero until the interview completes
	AnsweredCount int
	SkippedCount  int
}

type Topic struct {
	Number           int
	Label            string
	Description      string
	ExampleQuestions []string // generation hints only, never asked directly
	CreatedAt        time.Time
}

type Question struct {
	ID           string
	TopicNumber  int
	QuestionText string
	IsDefault    bool
	ChallengeID  string // set when the question is bound to a challenge
	CreatedAt    time.Time
}

// InterviewQuestion enables a catalog question for one interview and fixes
// its position in the catalog order.
type InterviewQuestion struct {
	InterviewID string
	QuestionID  string
	Enabled     bool
	SortOrder   int
}

type Challenge struct {
	ID           string
	Name         string
	Description  string
	TopicNumbers []int
	CreatedBy    string
	CreatedAt    time.Time
}

type TopicState struct {
	InterviewID   string
	TopicNumber   int
	Confidence    float64 // always within [0,1]
	CoveredPoints []string
}

// MessageMeta carries advisor diagnostics on bot messages. CoveredQuestions
// feeds the coverage resolver on later cycles.
type MessageMeta struct {
	Action           string   `json:"action,omitempty"`
	TopicConfidence  float64  `json:"topicConfidence,omitempty"`
	CoveredQuestions []string `json:"coveredQuestions,omitempty"`
}

type ChatMessage struct {
	ID          string
	InterviewID string
	Role        string
	Content     string
	// TopicNumber and QuestionText are set only on bot messages that pose a
	// catalog question.
	TopicNumber          int
	QuestionText         string
	IsFollowUp           bool
	OriginalQuestionText string
	Meta                 *MessageMeta
	CreatedAt            time.Time
}

type Answer struct {
	ID           string
	InterviewID  string
	TopicNumber  int
	QuestionText string
	AnswerText   string
	Skipped      bool
	CreatedAt    time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
