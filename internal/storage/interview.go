package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateInterview inserts the interview together with its session, topic
// states, and per-interview question enablement in one transaction.
// questionIDs fixes the catalog order for this interview.
func (s *Store) CreateInterview(iv Interview, questionIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := iv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO interviews (id, admin_email, manager_name, manager_role, status, share_token, selected_topics, challenge_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.AdminEmail, iv.ManagerName, iv.ManagerRole, StatusNotStarted,
		iv.ShareToken, encodeInts(iv.SelectedTopics), iv.ChallengeID, formatTime(createdAt),
	); err != nil {
		return fmt.Errorf("inserting interview: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO interview_sessions (interview_id, answered_count, skipped_count)
		VALUES (?, 0, 0)`, iv.ID,
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	for _, topicNumber := range iv.SelectedTopics {
		if _, err := tx.Exec(`
			INSERT INTO topic_states (interview_id, topic_number, confidence, covered_points)
			VALUES (?, ?, 0, '[]')`, iv.ID, topicNumber,
		); err != nil {
			return fmt.Errorf("inserting topic state %d: %w", topicNumber, err)
		}
	}

	for i, qid := range questionIDs {
		if _, err := tx.Exec(`
			INSERT INTO interview_questions (interview_id, question_id, enabled, sort_order)
			VALUES (?, ?, 1, ?)`, iv.ID, qid, i+1,
		); err != nil {
			return fmt.Errorf("inserting interview question %s: %w", qid, err)
		}
	}

	return tx.Commit()
}

const interviewColumns = `id, admin_email, manager_name, manager_role, status, share_token, selected_topics, challenge_id, created_at`

func scanInterview(row *sql.Row) (Interview, error) {
	var iv Interview
	var topics, createdAt string
	err := row.Scan(&iv.ID, &iv.AdminEmail, &iv.ManagerName, &iv.ManagerRole,
		&iv.Status, &iv.ShareToken, &topics, &iv.ChallengeID, &createdAt)
	if err == sql.ErrNoRows {
		return Interview{}, ErrNotFound
	}
	if err != nil {
		return Interview{}, err
	}
	if iv.SelectedTopics, err = decodeInts(topics); err != nil {
		return Interview{}, fmt.Errorf("decoding selected_topics: %w", err)
	}
	if iv.CreatedAt, err = parseTime(createdAt); err != nil {
		return Interview{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return iv, nil
}

func (s *Store) GetInterview(id string) (Interview, error) {
	row := s.db.QueryRow(`SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)
	return scanInterview(row)
}

// GetInterviewByToken resolves an interview by its opaque share token.
func (s *Store) GetInterviewByToken(shareToken string) (Interview, error) {
	row := s.db.QueryRow(`SELECT `+interviewColumns+` FROM interviews WHERE share_token = ?`, shareToken)
	return scanInterview(row)
}

func (s *Store) ListInterviews() ([]Interview, error) {
	rows, err := s.db.Query(`SELECT ` + interviewColumns + ` FROM interviews ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interview
	for rows.Next() {
		var iv Interview
		var topics, createdAt string
		if err := rows.Scan(&iv.ID, &iv.AdminEmail, &iv.ManagerName, &iv.ManagerRole,
			&iv.Status, &iv.ShareToken, &topics, &iv.ChallengeID, &createdAt); err != nil {
			return nil, err
		}
		if iv.SelectedTopics, err = decodeInts(topics); err != nil {
			return nil, fmt.Errorf("decoding selected_topics: %w", err)
		}
		if iv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, iv)
	}
	return results, rows.Err()
}

// UpdateInterviewStatus sets the lifecycle status and stamps the session
// transition timestamps first-write-wins: startedAt is recorded only on the
// first move into in_progress, completedAt only on the first completion.
func (s *Store) UpdateInterviewStatus(id, status string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning status transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE interviews SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	now := formatTime(time.Now().UTC())
	switch status {
	case StatusInProgress:
		if _, err := tx.Exec(`UPDATE interview_sessions SET started_at = ? WHERE interview_id = ? AND started_at = ''`, now, id); err != nil {
			return fmt.Errorf("stamping started_at: %w", err)
		}
	case StatusCompleted:
		if _, err := tx.Exec(`UPDATE interview_sessions SET completed_at = ? WHERE interview_id = ? AND completed_at = ''`, now, id); err != nil {
			return fmt.Errorf("stamping completed_at: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteInterview removes the interview and every dependent entity in one
// transaction (explicit cascade).
func (s *Store) DeleteInterview(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM interviews WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	for _, stmt := range []string{
		`DELETE FROM interview_sessions WHERE interview_id = ?`,
		`DELETE FROM interview_questions WHERE interview_id = ?`,
		`DELETE FROM topic_states WHERE interview_id = ?`,
		`DELETE FROM chat_messages WHERE interview_id = ?`,
		`DELETE FROM answers WHERE interview_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("cascading delete: %w", err)
		}
	}

	return tx.Commit()
}

// --- sessions ---

func (s *Store) GetSession(interviewID string) (Session, error) {
	var sess Session
	var startedAt, completedAt string
	err := s.db.QueryRow(`
		SELECT interview_id, started_at, completed_at, answered_count, skipped_count
		FROM interview_sessions WHERE interview_id = ?`, interviewID,
	).Scan(&sess.InterviewID, &startedAt, &completedAt, &sess.AnsweredCount, &sess.SkippedCount)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return Session{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if sess.CompletedAt, err = parseTime(completedAt); err != nil {
		return Session{}, fmt.Errorf("parsing completed_at: %w", err)
	}
	return sess, nil
}

func (s *Store) IncrementAnswered(interviewID string) error {
	_, err := s.db.Exec(`UPDATE interview_sessions SET answered_count = answered_count + 1 WHERE interview_id = ?`, interviewID)
	return err
}

func (s *Store) IncrementSkipped(interviewID string) error {
	_, err := s.db.Exec(`UPDATE interview_sessions SET skipped_count = skipped_count + 1 WHERE interview_id = ?`, interviewID)
	return err
}

// --- topic states ---

func (s *Store) ListTopicStates(interviewID string) ([]TopicState, error) {
	rows, err := s.db.Query(`
		SELECT interview_id, topic_number, confidence, covered_points
		FROM topic_states WHERE interview_id = ? ORDER BY topic_number ASC`, interviewID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TopicState
	for rows.Next() {
		var ts TopicState
		var points string
		if err := rows.Scan(&ts.InterviewID, &ts.TopicNumber, &ts.Confidence, &points); err != nil {
			return nil, err
		}
		if ts.CoveredPoints, err = decodeStrings(points); err != nil {
			return nil, fmt.Errorf("decoding covered_points: %w", err)
		}
		results = append(results, ts)
	}
	return results, rows.Err()
}

func (s *Store) UpdateTopicState(ts TopicState) error {
	res, err := s.db.Exec(`
		UPDATE topic_states SET confidence = ?, covered_points = ?
		WHERE interview_id = ? AND topic_number = ?`,
		ts.Confidence, encodeStrings(ts.CoveredPoints), ts.InterviewID, ts.TopicNumber,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
