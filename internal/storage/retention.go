package storage

import (
	"fmt"
	"time"
)

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	Lessons  int
	Attempts int
	Messages int
}

// Sweep deletes stale local data older than the cutoff. Lesson content is
// removed when it was last accessed (or, if never opened, downloaded)
// before the cutoff. Quiz attempts and chat messages are removed only when
// already synced; unsynced records are never swept — they are the durable
// source of truth until the backend acknowledges them.
func (db *DB) Sweep(cutoff time.Time) (SweepResult, error) {
	var result SweepResult

	res, err := db.conn.Exec(`
		DELETE FROM lesson_content
		WHERE COALESCE(last_accessed, downloaded_at) < ?
	`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to sweep lesson content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Lessons = int(n)
	}

	res, err = db.conn.Exec(`
		DELETE FROM quiz_attempts
		WHERE synced = 1 AND completed_at < ?
	`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to sweep quiz attempts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Attempts = int(n)
	}

	res, err = db.conn.Exec(`
		DELETE FROM chat_messages
		WHERE synced = 1 AND timestamp < ?
	`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to sweep chat messages: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Messages = int(n)
	}

	return result, nil
}
