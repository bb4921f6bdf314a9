package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shikkhasathi/offline/internal/domain"
)

// AppendSyncItem durably appends a queue entry. Re-appending the same item
// id replaces the stored payload instead of duplicating the entry.
func (db *DB) AppendSyncItem(item domain.SyncItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid sync item %s: %w", item.ID, err)
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode sync item %s: %w", item.ID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO sync_queue (id, kind, payload_json, enqueued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			payload_json = excluded.payload_json,
			enqueued_at = excluded.enqueued_at
	`, item.ID, string(item.Kind), string(payload), item.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to append sync item %s: %w", item.ID, err)
	}
	return nil
}

// ListSyncItems returns every queued item in enqueue (FIFO) order.
func (db *DB) ListSyncItems() ([]domain.SyncItem, error) {
	rows, err := db.conn.Query(`SELECT payload_json FROM sync_queue ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync items: %w", err)
	}
	defer rows.Close()

	var items []domain.SyncItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan sync item row: %w", err)
		}
		var item domain.SyncItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("failed to decode sync item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteSyncItem removes a delivered (or user-discarded) queue entry.
func (db *DB) DeleteSyncItem(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync item %s: %w", id, err)
	}
	return nil
}

// CountSyncItems reports the number of pending queue entries.
func (db *DB) CountSyncItems() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync items: %w", err)
	}
	return n, nil
}

// SaveDownloadItem upserts a download queue entry by content id.
func (db *DB) SaveDownloadItem(item domain.DownloadItem) error {
	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("failed to encode download content %s: %w", item.Content.ID, err)
	}
	var startedAt, completedAt sql.NullTime
	if item.StartedAt != nil {
		startedAt = sql.NullTime{Time: *item.StartedAt, Valid: true}
	}
	if item.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *item.CompletedAt, Valid: true}
	}
	_, err = db.conn.Exec(`
		INSERT INTO download_queue (content_id, content_json, status, downloaded_bytes,
			queued_at, started_at, completed_at, error, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			content_json = excluded.content_json,
			status = excluded.status,
			downloaded_bytes = excluded.downloaded_bytes,
			queued_at = excluded.queued_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			retry_count = excluded.retry_count
	`,
		item.Content.ID, string(contentJSON), string(item.Status), item.DownloadedBytes,
		item.QueuedAt, startedAt, completedAt, item.Error, item.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save download item %s: %w", item.Content.ID, err)
	}
	return nil
}

// ListDownloadItems returns the persisted queue in enqueue order.
func (db *DB) ListDownloadItems() ([]domain.DownloadItem, error) {
	rows, err := db.conn.Query(`
		SELECT content_json, status, downloaded_bytes, queued_at,
			started_at, completed_at, error, retry_count
		FROM download_queue ORDER BY queued_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list download items: %w", err)
	}
	defer rows.Close()

	var items []domain.DownloadItem
	for rows.Next() {
		var item domain.DownloadItem
		var contentJSON, status string
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(
			&contentJSON, &status, &item.DownloadedBytes, &item.QueuedAt,
			&startedAt, &completedAt, &item.Error, &item.RetryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download item row: %w", err)
		}
		if err := json.Unmarshal([]byte(contentJSON), &item.Content); err != nil {
			return nil, fmt.Errorf("failed to decode download content: %w", err)
		}
		item.Status = domain.DownloadStatus(status)
		if startedAt.Valid {
			t := startedAt.Time
			item.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			item.CompletedAt = &t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteDownloadItem removes a queue entry by content id.
func (db *DB) DeleteDownloadItem(contentID string) error {
	if _, err := db.conn.Exec(`DELETE FROM download_queue WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("failed to delete download item %s: %w", contentID, err)
	}
	return nil
}

// ClearDownloadQueue removes every queue entry.
func (db *DB) ClearDownloadQueue() error {
	if _, err := db.conn.Exec(`DELETE FROM download_queue`); err != nil {
		return fmt.Errorf("failed to clear download queue: %w", err)
	}
	return nil
}
