package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shikkhasathi/offline/internal/domain"
)

// PutQuizAttempt inserts or overwrites an attempt by id. The synced flag is
// monotonic: once a stored row is synced, a re-save with synced=false cannot
// clear it.
func (db *DB) PutQuizAttempt(a domain.QuizAttempt) error {
	questionsJSON, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions for attempt %s: %w", a.ID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO quiz_attempts (id, user_id, quiz_id, subject, topic, questions_json,
			score, max_score, time_taken, difficulty, completed_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			quiz_id = excluded.quiz_id,
			subject = excluded.subject,
			topic = excluded.topic,
			questions_json = excluded.questions_json,
			score = excluded.score,
			max_score = excluded.max_score,
			time_taken = excluded.time_taken,
			difficulty = excluded.difficulty,
			completed_at = excluded.completed_at,
			synced = MAX(quiz_attempts.synced, excluded.synced)
	`,
		a.ID, a.UserID, a.QuizID, a.Subject, a.Topic, string(questionsJSON),
		a.Score, a.MaxScore, a.TimeTaken, a.Difficulty, a.CompletedAt, a.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to put quiz attempt %s: %w", a.ID, err)
	}
	return nil
}

// GetQuizAttempt retrieves an attempt by id, or ErrNotFound.
func (db *DB) GetQuizAttempt(id string) (*domain.QuizAttempt, error) {
	row := db.conn.QueryRow(`
		SELECT id, user_id, quiz_id, subject, topic, questions_json,
			score, max_score, time_taken, difficulty, completed_at, synced
		FROM quiz_attempts WHERE id = ?
	`, id)
	a, err := scanQuizAttempt(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quiz attempt %s: %w", id, err)
	}
	return a, nil
}

// QuizAttemptsByUser returns all attempts owned by a user.
func (db *DB) QuizAttemptsByUser(userID string) ([]domain.QuizAttempt, error) {
	return db.queryQuizAttempts(`
		SELECT id, user_id, quiz_id, subject, topic, questions_json,
			score, max_score, time_taken, difficulty, completed_at, synced
		FROM quiz_attempts WHERE user_id = ? ORDER BY completed_at
	`, userID)
}

// UnsyncedQuizAttempts returns attempts not yet acknowledged by the backend.
func (db *DB) UnsyncedQuizAttempts() ([]domain.QuizAttempt, error) {
	return db.queryQuizAttempts(`
		SELECT id, user_id, quiz_id, subject, topic, questions_json,
			score, max_score, time_taken, difficulty, completed_at, synced
		FROM quiz_attempts WHERE synced = 0 ORDER BY completed_at
	`)
}

// MarkQuizAttemptSynced flips the synced flag to true. The flag never
// transitions back.
func (db *DB) MarkQuizAttemptSynced(id string) error {
	if _, err := db.conn.Exec(`UPDATE quiz_attempts SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark quiz attempt %s synced: %w", id, err)
	}
	return nil
}

// DeleteQuizAttempt removes an attempt by id; explicit user action only.
func (db *DB) DeleteQuizAttempt(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM quiz_attempts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete quiz attempt %s: %w", id, err)
	}
	return nil
}

// CountQuizAttempts reports the number of stored attempts.
func (db *DB) CountQuizAttempts() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM quiz_attempts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quiz attempts: %w", err)
	}
	return n, nil
}

// AllQuizAttempts exports every stored attempt in completion order.
func (db *DB) AllQuizAttempts() ([]domain.QuizAttempt, error) {
	return db.queryQuizAttempts(`
		SELECT id, user_id, quiz_id, subject, topic, questions_json,
			score, max_score, time_taken, difficulty, completed_at, synced
		FROM quiz_attempts ORDER BY completed_at
	`)
}

func (db *DB) queryQuizAttempts(query string, args ...any) ([]domain.QuizAttempt, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.QuizAttempt
	for rows.Next() {
		a, err := scanQuizAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt row: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanQuizAttempt(row rowScanner) (*domain.QuizAttempt, error) {
	var a domain.QuizAttempt
	var questionsJSON string
	err := row.Scan(
		&a.ID, &a.UserID, &a.QuizID, &a.Subject, &a.Topic, &questionsJSON,
		&a.Score, &a.MaxScore, &a.TimeTaken, &a.Difficulty, &a.CompletedAt, &a.Synced,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questionsJSON), &a.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions for attempt %s: %w", a.ID, err)
	}
	return &a, nil
}
