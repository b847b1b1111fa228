package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raayon/raayon/internal/storage"
)

// SummaryStore abstracts what the worker needs from storage.
type SummaryStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetInterview(id string) (storage.Interview, error)
	GetSession(interviewID string) (storage.Session, error)
	ListTopics() ([]storage.Topic, error)
	ListTopicStates(interviewID string) ([]storage.TopicState, error)
	ListAnswers(interviewID string) ([]storage.Answer, error)
}

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

const summaryJobType = "send_summary"

// Worker processes send_summary jobs from the job queue. Summary jobs are
// enqueued with a single attempt, so a failed send stays failed.
type Worker struct {
	store  SummaryStore
	sender Sender
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store SummaryStore, sender Sender, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:  store,
		sender: sender,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("mail worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single send_summary job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{summaryJobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("summary email failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type summaryPayload struct {
	InterviewID string `json:"interviewId"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload summaryPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	html, subject, to, err := w.render(payload.InterviewID)
	if err != nil {
		return err
	}

	id, err := w.sender.Send(ctx, to, subject, html)
	if err != nil {
		return fmt.Errorf("sending summary for interview %s: %w", payload.InterviewID, err)
	}

	w.logger.Info("summary email sent", "interview", payload.InterviewID, "message_id", id)
	return nil
}

func (w *Worker) render(interviewID string) (html, subject, to string, err error) {
	iv, err := w.store.GetInterview(interviewID)
	if err != nil {
		return "", "", "", fmt.Errorf("loading interview %s: %w", interviewID, err)
	}
	if iv.AdminEmail == "" {
		return "", "", "", fmt.Errorf("interview %s has no admin email", interviewID)
	}

	sess, err := w.store.GetSession(interviewID)
	if err != nil {
		return "", "", "", fmt.Errorf("loading session: %w", err)
	}
	topics, err := w.store.ListTopics()
	if err != nil {
		return "", "", "", fmt.Errorf("loading topics: %w", err)
	}
	states, err := w.store.ListTopicStates(interviewID)
	if err != nil {
		return "", "", "", fmt.Errorf("loading topic states: %w", err)
	}
	answers, err := w.store.ListAnswers(interviewID)
	if err != nil {
		return "", "", "", fmt.Errorf("loading answers: %w", err)
	}

	data := BuildSummary(iv, sess, topics, states, answers)
	html, err = RenderSummary(data)
	if err != nil {
		return "", "", "", err
	}
	return html, Subject(iv), iv.AdminEmail, nil
}
