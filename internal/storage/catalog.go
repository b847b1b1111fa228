package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConflict is returned when a write collides with an existing record,
// such as a duplicate topic number.
var ErrConflict = errors.New("already exists")

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint")
}

// --- topics ---

func (s *Store) CreateTopic(t Topic) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO topics (number, label, description, example_questions, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.Number, t.Label, t.Description, encodeStrings(t.ExampleQuestions), formatTime(createdAt),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("topic %d: %w", t.Number, ErrConflict)
	}
	return err
}

func (s *Store) GetTopic(number int) (Topic, error) {
	var t Topic
	var examples, createdAt string
	err := s.db.QueryRow(`
		SELECT number, label, description, example_questions, created_at
		FROM topics WHERE number = ?`, number,
	).Scan(&t.Number, &t.Label, &t.Description, &examples, &createdAt)
	if err == sql.ErrNoRows {
		return Topic{}, ErrNotFound
	}
	if err != nil {
		return Topic{}, err
	}
	if t.ExampleQuestions, err = decodeStrings(examples); err != nil {
		return Topic{}, fmt.Errorf("decoding example_questions: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Topic{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

// ListTopics returns every topic ordered by number; this ordering is the
// canonical topic order everywhere in the system.
func (s *Store) ListTopics() ([]Topic, error) {
	rows, err := s.db.Query(`
		SELECT number, label, description, example_questions, created_at
		FROM topics ORDER BY number ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Topic
	for rows.Next() {
		var t Topic
		var examples, createdAt string
		if err := rows.Scan(&t.Number, &t.Label, &t.Description, &examples, &createdAt); err != nil {
			return nil, err
		}
		if t.ExampleQuestions, err = decodeStrings(examples); err != nil {
			return nil, fmt.Errorf("decoding example_questions: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) UpdateTopic(t Topic) error {
	res, err := s.db.Exec(`
		UPDATE topics SET label = ?, description = ?, example_questions = ?
		WHERE number = ?`,
		t.Label, t.Description, encodeStrings(t.ExampleQuestions), t.Number,
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

func (s *Store) DeleteTopic(number int) error {
	res, err := s.db.Exec(`DELETE FROM topics WHERE number = ?`, number)
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

// --- questions ---

func (s *Store) CreateQuestion(q Question) error {
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO questions (id, topic_number, question_text, is_default, challenge_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.TopicNumber, q.QuestionText, boolToInt(q.IsDefault), q.ChallengeID, formatTime(createdAt),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("question %s: %w", q.ID, ErrConflict)
	}
	return err
}

func (s *Store) GetQuestion(id string) (Question, error) {
	row := s.db.QueryRow(`
		SELECT id, topic_number, question_text, is_default, challenge_id, created_at
		FROM questions WHERE id = ?`, id)
	return scanQuestion(row.Scan)
}

func scanQuestion(scan func(...any) error) (Question, error) {
	var q Question
	var isDefault int
	var createdAt string
	err := scan(&q.ID, &q.TopicNumber, &q.QuestionText, &isDefault, &q.ChallengeID, &createdAt)
	if err == sql.ErrNoRows {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, err
	}
	q.IsDefault = isDefault != 0
	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return Question{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return q, nil
}

// ListDefaultQuestions returns the default catalog questions for one topic
// in insertion order.
func (s *Store) ListDefaultQuestions(topicNumber int) ([]Question, error) {
	return s.queryQuestions(`
		SELECT id, topic_number, question_text, is_default, challenge_id, created_at
		FROM questions WHERE topic_number = ? AND is_default = 1 AND challenge_id = ''
		ORDER BY created_at ASC, id ASC`, topicNumber)
}

// ListChallengeQuestions returns the questions generated for one challenge,
// grouped by topic then insertion order.
func (s *Store) ListChallengeQuestions(challengeID string) ([]Question, error) {
	return s.queryQuestions(`
		SELECT id, topic_number, question_text, is_default, challenge_id, created_at
		FROM questions WHERE challenge_id = ?
		ORDER BY topic_number ASC, created_at ASC, id ASC`, challengeID)
}

func (s *Store) queryQuestions(query string, args ...any) ([]Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

func (s *Store) UpdateQuestionText(id, text string) error {
	res, err := s.db.Exec(`UPDATE questions SET question_text = ? WHERE id = ?`, text, id)
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

func (s *Store) DeleteQuestion(id string) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
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

// ListEnabledQuestions returns the catalog for one interview: enabled
// questions joined with their text, in the interview's sort order. This
// order drives both question selection and progress accounting.
func (s *Store) ListEnabledQuestions(interviewID string) ([]Question, error) {
	rows, err := s.db.Query(`
		SELECT q.id, q.topic_number, q.question_text, q.is_default, q.challenge_id, q.created_at
		FROM interview_questions iq
		JOIN questions q ON q.id = iq.question_id
		WHERE iq.interview_id = ? AND iq.enabled = 1
		ORDER BY iq.sort_order ASC`, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// SetQuestionEnabled toggles one catalog question for one interview.
func (s *Store) SetQuestionEnabled(interviewID, questionID string, enabled bool) error {
	res, err := s.db.Exec(`
		UPDATE interview_questions SET enabled = ?
		WHERE interview_id = ? AND question_id = ?`,
		boolToInt(enabled), interviewID, questionID,
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

// --- challenges ---

func (s *Store) CreateChallenge(c Challenge) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO challenges (id, name, description, topic_numbers, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, encodeInts(c.TopicNumbers), c.CreatedBy, formatTime(createdAt),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("challenge %s: %w", c.ID, ErrConflict)
	}
	return err
}

func (s *Store) GetChallenge(id string) (Challenge, error) {
	var c Challenge
	var topics, createdAt string
	err := s.db.QueryRow(`
		SELECT id, name, description, topic_numbers, created_by, created_at
		FROM challenges WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &topics, &c.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	if c.TopicNumbers, err = decodeInts(topics); err != nil {
		return Challenge{}, fmt.Errorf("decoding topic_numbers: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Challenge{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateChallenge(c Challenge) error {
	res, err := s.db.Exec(`
		UPDATE challenges SET name = ?, description = ?, topic_numbers = ?
		WHERE id = ?`,
		c.Name, c.Description, encodeInts(c.TopicNumbers), c.ID,
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

func (s *Store) ListChallenges() ([]Challenge, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, topic_numbers, created_by, created_at
		FROM challenges ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Challenge
	for rows.Next() {
		var c Challenge
		var topics, createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &topics, &c.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		if c.TopicNumbers, err = decodeInts(topics); err != nil {
			return nil, fmt.Errorf("decoding topic_numbers: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteChallenge removes the challenge and its generated questions.
func (s *Store) DeleteChallenge(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM challenges WHERE id = ?`, id)
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
	if _, err := tx.Exec(`DELETE FROM questions WHERE challenge_id = ?`, id); err != nil {
		return fmt.Errorf("deleting challenge questions: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
