package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendMessage persists one chat message. The caller sets CreatedAt; the
// transcript is ordered by (created_at, rowid) so messages written within
// the same instant keep their insertion order.
func (s *Store) AppendMessage(m ChatMessage) error {
	var meta string
	if m.Meta != nil {
		b, err := json.Marshal(m.Meta)
		if err != nil {
			return fmt.Errorf("encoding message meta: %w", err)
		}
		meta = string(b)
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, interview_id, role, content, topic_number, question_text, is_follow_up, original_question_text, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.InterviewID, m.Role, m.Content, m.TopicNumber, m.QuestionText,
		boolToInt(m.IsFollowUp), m.OriginalQuestionText, meta, formatTime(createdAt),
	)
	return err
}

// ListMessages returns the full transcript for an interview in chronological order.
func (s *Store) ListMessages(interviewID string) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, interview_id, role, content, topic_number, question_text, is_follow_up, original_question_text, meta, created_at
		FROM chat_messages WHERE interview_id = ?
		ORDER BY created_at ASC, rowid ASC`, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// LastBotQuestion returns the most recent bot message that poses a catalog
// question. Returns ErrNotFound when the bot has not asked anything yet.
func (s *Store) LastBotQuestion(interviewID string) (ChatMessage, error) {
	row := s.db.QueryRow(`
		SELECT id, interview_id, role, content, topic_number, question_text, is_follow_up, original_question_text, meta, created_at
		FROM chat_messages
		WHERE interview_id = ? AND role = ? AND question_text != ''
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, interviewID, RoleBot)
	m, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return ChatMessage{}, ErrNotFound
	}
	return m, err
}

func scanMessage(scan func(...any) error) (ChatMessage, error) {
	var m ChatMessage
	var isFollowUp int
	var meta, createdAt string
	err := scan(&m.ID, &m.InterviewID, &m.Role, &m.Content, &m.TopicNumber,
		&m.QuestionText, &isFollowUp, &m.OriginalQuestionText, &meta, &createdAt)
	if err != nil {
		return ChatMessage{}, err
	}
	m.IsFollowUp = isFollowUp != 0
	if meta != "" {
		m.Meta = &MessageMeta{}
		if err := json.Unmarshal([]byte(meta), m.Meta); err != nil {
			return ChatMessage{}, fmt.Errorf("decoding message meta: %w", err)
		}
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return ChatMessage{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return m, nil
}

// --- answers ---

// InsertAnswer records an answer keyed by (interview, question text). A
// repeated answer to the same question is ignored; the return value reports
// whether the row was actually inserted.
func (s *Store) InsertAnswer(a Answer) (bool, error) {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO answers (id, interview_id, topic_number, question_text, answer_text, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.InterviewID, a.TopicNumber, a.QuestionText, a.AnswerText,
		boolToInt(a.Skipped), formatTime(createdAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAnswers returns answers for an interview grouped by topic then time.
func (s *Store) ListAnswers(interviewID string) ([]Answer, error) {
	rows, err := s.db.Query(`
		SELECT id, interview_id, topic_number, question_text, answer_text, skipped, created_at
		FROM answers WHERE interview_id = ?
		ORDER BY topic_number ASC, created_at ASC`, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Answer
	for rows.Next() {
		var a Answer
		var skipped int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.InterviewID, &a.TopicNumber, &a.QuestionText,
			&a.AnswerText, &skipped, &createdAt); err != nil {
			return nil, err
		}
		a.Skipped = skipped != 0
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
