package storage

import (
	"database/sql"
	"fmt"

	"github.com/shikkhasathi/offline/internal/domain"
)

// PutUser overwrites the offline profile mirror for a user. Called on every
// successful profile sync.
func (db *DB) PutUser(u domain.User) error {
	_, err := db.conn.Exec(`
		INSERT INTO users (id, name, grade, medium, xp, level, streak, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			grade = excluded.grade,
			medium = excluded.medium,
			xp = excluded.xp,
			level = excluded.level,
			streak = excluded.streak,
			last_sync = excluded.last_sync
	`, u.ID, u.Name, u.Grade, u.Medium, u.XP, u.Level, u.Streak, u.LastSync)
	if err != nil {
		return fmt.Errorf("failed to put user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser retrieves the profile mirror by id, or ErrNotFound.
func (db *DB) GetUser(id string) (*domain.User, error) {
	var u domain.User
	err := db.conn.QueryRow(`
		SELECT id, name, grade, medium, xp, level, streak, last_sync
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.Grade, &u.Medium, &u.XP, &u.Level, &u.Streak, &u.LastSync)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// AllUsers exports every locally mirrored profile.
func (db *DB) AllUsers() ([]domain.User, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, grade, medium, xp, level, streak, last_sync
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Grade, &u.Medium, &u.XP, &u.Level, &u.Streak, &u.LastSync); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers reports the number of mirrored profiles.
func (db *DB) CountUsers() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// PutAchievement inserts or overwrites an unlock record by id.
func (db *DB) PutAchievement(a domain.Achievement) error {
	_, err := db.conn.Exec(`
		INSERT INTO achievements (id, user_id, name, xp_reward, unlocked_at, synced)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			xp_reward = excluded.xp_reward,
			unlocked_at = excluded.unlocked_at,
			synced = MAX(achievements.synced, excluded.synced)
	`, a.ID, a.UserID, a.Name, a.XPReward, a.UnlockedAt, a.Synced)
	if err != nil {
		return fmt.Errorf("failed to put achievement %s: %w", a.ID, err)
	}
	return nil
}

// AchievementsByUser returns a user's unlock records in unlock order.
func (db *DB) AchievementsByUser(userID string) ([]domain.Achievement, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, xp_reward, unlocked_at, synced
		FROM achievements WHERE user_id = ? ORDER BY unlocked_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var unlocks []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.XPReward, &a.UnlockedAt, &a.Synced); err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		unlocks = append(unlocks, a)
	}
	return unlocks, rows.Err()
}

// AllAchievements exports every unlock record in unlock order.
func (db *DB) AllAchievements() ([]domain.Achievement, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, xp_reward, unlocked_at, synced
		FROM achievements ORDER BY unlocked_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var unlocks []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.XPReward, &a.UnlockedAt, &a.Synced); err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		unlocks = append(unlocks, a)
	}
	return unlocks, rows.Err()
}

// CountAchievements reports the number of unlock records.
func (db *DB) CountAchievements() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM achievements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count achievements: %w", err)
	}
	return n, nil
}

// MarkAchievementSynced flips the synced flag for one unlock record.
func (db *DB) MarkAchievementSynced(id string) error {
	if _, err := db.conn.Exec(`UPDATE achievements SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark achievement %s synced: %w", id, err)
	}
	return nil
}
