package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveQuestionAnswer appends a record to the question/answer log. ID and
// CreatedAt are filled in when empty.
func (s *Store) SaveQuestionAnswer(ctx context.Context, qa QuestionAnswer) (QuestionAnswer, error) {
	if qa.ID == "" {
		qa.ID = uuid.New().String()
	}
	if qa.CreatedAt.IsZero() {
		qa.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO question_answers (id, question, answer, created_at)
		VALUES (?, ?, ?, ?)`,
		qa.ID, qa.Question, qa.Answer, qa.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return QuestionAnswer{}, err
	}
	return qa, nil
}

// LatestAnswer returns the most recent log record for the exact question text.
func (s *Store) LatestAnswer(ctx context.Context, question string) (QuestionAnswer, error) {
	var qa QuestionAnswer
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question, answer, created_at
		FROM question_answers WHERE question = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, question,
	).Scan(&qa.ID, &qa.Question, &qa.Answer, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionAnswer{}, ErrNotFound
	}
	if err != nil {
		return QuestionAnswer{}, err
	}
	if qa.CreatedAt, err = parseTime(createdAt); err != nil {
		return QuestionAnswer{}, err
	}
	return qa, nil
}

// RecentQuestionAnswers returns up to limit log records, newest first.
func (s *Store) RecentQuestionAnswers(ctx context.Context, limit int) ([]QuestionAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, created_at
		FROM question_answers ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuestionAnswer
	for rows.Next() {
		var qa QuestionAnswer
		var createdAt string
		if err := rows.Scan(&qa.ID, &qa.Question, &qa.Answer, &createdAt); err != nil {
			return nil, err
		}
		if qa.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

// timeLayout has a fixed-width fraction so created_at sorts as text. The
// column is declared TEXT so the driver hands the value back unconverted.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// parseTime also accepts RFC 3339 with a trimmed fraction, the form a
// DATETIME column round-trips through.
func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339Nano, v); rfcErr == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
