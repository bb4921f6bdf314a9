package storage

import (
	"database/sql"
	"fmt"

	"github.com/shikkhasathi/offline/internal/domain"
)

// PutProgress upserts the mastery record for (user, subject, topic). A local
// mutation writes synced=false; the sync manager flips it back after the
// backend acknowledges.
func (db *DB) PutProgress(p domain.Progress) error {
	_, err := db.conn.Exec(`
		INSERT INTO progress (key, user_id, subject, topic, completion,
			time_spent, last_accessed, mastery, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			completion = excluded.completion,
			time_spent = excluded.time_spent,
			last_accessed = excluded.last_accessed,
			mastery = excluded.mastery,
			synced = excluded.synced
	`,
		p.Key(), p.UserID, p.Subject, p.Topic, p.Completion,
		p.TimeSpent, p.LastAccessed, p.Mastery, p.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to put progress %s: %w", p.Key(), err)
	}
	return nil
}

// GetProgress retrieves the mastery record for (user, subject, topic), or
// ErrNotFound.
func (db *DB) GetProgress(userID, subject, topic string) (*domain.Progress, error) {
	key := domain.Progress{UserID: userID, Subject: subject, Topic: topic}.Key()
	row := db.conn.QueryRow(`
		SELECT user_id, subject, topic, completion, time_spent, last_accessed, mastery, synced
		FROM progress WHERE key = ?
	`, key)
	p, err := scanProgress(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress %s: %w", key, err)
	}
	return p, nil
}

// ProgressByUser returns all mastery records for a user.
func (db *DB) ProgressByUser(userID string) ([]domain.Progress, error) {
	return db.queryProgress(`
		SELECT user_id, subject, topic, completion, time_spent, last_accessed, mastery, synced
		FROM progress WHERE user_id = ?
	`, userID)
}

// AllProgress exports every mastery record.
func (db *DB) AllProgress() ([]domain.Progress, error) {
	return db.queryProgress(`
		SELECT user_id, subject, topic, completion, time_spent, last_accessed, mastery, synced
		FROM progress
	`)
}

// CountProgress reports the number of mastery records.
func (db *DB) CountProgress() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM progress`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count progress: %w", err)
	}
	return n, nil
}

// MarkProgressSynced flips the synced flag for one mastery record.
func (db *DB) MarkProgressSynced(userID, subject, topic string) error {
	key := domain.Progress{UserID: userID, Subject: subject, Topic: topic}.Key()
	if _, err := db.conn.Exec(`UPDATE progress SET synced = 1 WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to mark progress %s synced: %w", key, err)
	}
	return nil
}

// DeleteProgress removes one mastery record; explicit user action only.
func (db *DB) DeleteProgress(userID, subject, topic string) error {
	key := domain.Progress{UserID: userID, Subject: subject, Topic: topic}.Key()
	if _, err := db.conn.Exec(`DELETE FROM progress WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete progress %s: %w", key, err)
	}
	return nil
}

func (db *DB) queryProgress(query string, args ...any) ([]domain.Progress, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var records []domain.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		records = append(records, *p)
	}
	return records, rows.Err()
}

func scanProgress(row rowScanner) (*domain.Progress, error) {
	var p domain.Progress
	err := row.Scan(
		&p.UserID, &p.Subject, &p.Topic, &p.Completion,
		&p.TimeSpent, &p.LastAccessed, &p.Mastery, &p.Synced,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
