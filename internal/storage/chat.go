package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shikkhasathi/offline/internal/domain"
)

// PutChatMessage inserts or overwrites a cached chat message by id. The
// synced flag is monotonic, same as quiz attempts.
func (db *DB) PutChatMessage(m domain.ChatMessage) error {
	sourcesJSON, err := json.Marshal(m.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources for message %s: %w", m.ID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO chat_messages (id, user_id, role, content, sources_json,
			voice_input, timestamp, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			role = excluded.role,
			content = excluded.content,
			sources_json = excluded.sources_json,
			voice_input = excluded.voice_input,
			timestamp = excluded.timestamp,
			synced = MAX(chat_messages.synced, excluded.synced)
	`,
		m.ID, m.UserID, m.Role, m.Content, string(sourcesJSON),
		m.VoiceInput, m.Timestamp, m.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to put chat message %s: %w", m.ID, err)
	}
	return nil
}

// GetChatMessage retrieves a cached message by id, or ErrNotFound.
func (db *DB) GetChatMessage(id string) (*domain.ChatMessage, error) {
	row := db.conn.QueryRow(`
		SELECT id, user_id, role, content, sources_json, voice_input, timestamp, synced
		FROM chat_messages WHERE id = ?
	`, id)
	m, err := scanChatMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat message %s: %w", id, err)
	}
	return m, nil
}

// ChatMessagesByUser returns a user's cached messages in timestamp order.
func (db *DB) ChatMessagesByUser(userID string) ([]domain.ChatMessage, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, role, content, sources_json, voice_input, timestamp, synced
		FROM chat_messages WHERE user_id = ? ORDER BY timestamp
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkChatMessageSynced flips the synced flag for one message.
func (db *DB) MarkChatMessageSynced(id string) error {
	if _, err := db.conn.Exec(`UPDATE chat_messages SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark chat message %s synced: %w", id, err)
	}
	return nil
}

// DeleteChatMessage removes a cached message; explicit user action only.
func (db *DB) DeleteChatMessage(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM chat_messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat message %s: %w", id, err)
	}
	return nil
}

// CountChatMessages reports the number of cached messages.
func (db *DB) CountChatMessages() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}
	return n, nil
}

// AllChatMessages exports every cached message in timestamp order.
func (db *DB) AllChatMessages() ([]domain.ChatMessage, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, role, content, sources_json, voice_input, timestamp, synced
		FROM chat_messages ORDER BY timestamp
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func scanChatMessage(row rowScanner) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	var sourcesJSON string
	err := row.Scan(
		&m.ID, &m.UserID, &m.Role, &m.Content, &sourcesJSON,
		&m.VoiceInput, &m.Timestamp, &m.Synced,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &m.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources for message %s: %w", m.ID, err)
	}
	return &m, nil
}
