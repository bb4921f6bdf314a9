package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shikkhasathi/offline/internal/domain"
)

// PutLessonContent inserts or overwrites a lesson by id (upsert semantics).
func (db *DB) PutLessonContent(lc domain.LessonContent) error {
	var lastAccessed sql.NullTime
	if lc.LastAccessed != nil {
		lastAccessed = sql.NullTime{Time: *lc.LastAccessed, Valid: true}
	}
	_, err := db.conn.Exec(`
		INSERT INTO lesson_content (id, subject, grade, chapter, topic, title, content,
			language, page_number, textbook_name, downloaded_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			grade = excluded.grade,
			chapter = excluded.chapter,
			topic = excluded.topic,
			title = excluded.title,
			content = excluded.content,
			language = excluded.language,
			page_number = excluded.page_number,
			textbook_name = excluded.textbook_name,
			downloaded_at = excluded.downloaded_at,
			last_accessed = excluded.last_accessed
	`,
		lc.ID, lc.Subject, lc.Grade, lc.Chapter, lc.Topic, lc.Title, lc.Content,
		lc.Language, lc.PageNumber, lc.TextbookName, lc.DownloadedAt, lastAccessed,
	)
	if err != nil {
		return fmt.Errorf("failed to put lesson content %s: %w", lc.ID, err)
	}
	return nil
}

// GetLessonContent retrieves a lesson by id, or ErrNotFound.
func (db *DB) GetLessonContent(id string) (*domain.LessonContent, error) {
	row := db.conn.QueryRow(`
		SELECT id, subject, grade, chapter, topic, title, content,
			language, page_number, textbook_name, downloaded_at, last_accessed
		FROM lesson_content WHERE id = ?
	`, id)
	lc, err := scanLessonContent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lesson content %s: %w", id, err)
	}
	return lc, nil
}

// HasLessonContent reports whether a lesson with this id is already stored.
func (db *DB) HasLessonContent(id string) (bool, error) {
	var found int
	err := db.conn.QueryRow(`SELECT 1 FROM lesson_content WHERE id = ? LIMIT 1`, id).Scan(&found)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check lesson content %s: %w", id, err)
	}
	return true, nil
}

// LessonContentBySubjectGrade returns all lessons matching subject and grade.
func (db *DB) LessonContentBySubjectGrade(subject string, grade int) ([]domain.LessonContent, error) {
	rows, err := db.conn.Query(`
		SELECT id, subject, grade, chapter, topic, title, content,
			language, page_number, textbook_name, downloaded_at, last_accessed
		FROM lesson_content WHERE subject = ? AND grade = ?
	`, subject, grade)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson content by subject/grade: %w", err)
	}
	return collectLessonContent(rows)
}

// SearchLessonContent returns lessons whose title, content or topic contains
// the query, case-insensitively.
func (db *DB) SearchLessonContent(query string) ([]domain.LessonContent, error) {
	pattern := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, subject, grade, chapter, topic, title, content,
			language, page_number, textbook_name, downloaded_at, last_accessed
		FROM lesson_content
		WHERE title LIKE ? COLLATE NOCASE
		   OR content LIKE ? COLLATE NOCASE
		   OR topic LIKE ? COLLATE NOCASE
	`, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search lesson content: %w", err)
	}
	return collectLessonContent(rows)
}

// TouchLessonContent updates a lesson's last_accessed timestamp. The content
// body is never mutated after download.
func (db *DB) TouchLessonContent(id string, at time.Time) error {
	_, err := db.conn.Exec(`UPDATE lesson_content SET last_accessed = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch lesson content %s: %w", id, err)
	}
	return nil
}

// DeleteLessonContent removes a lesson by id. Deleting a missing id is not
// an error.
func (db *DB) DeleteLessonContent(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM lesson_content WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete lesson content %s: %w", id, err)
	}
	return nil
}

// CountLessonContent reports the number of stored lessons.
func (db *DB) CountLessonContent() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM lesson_content`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lesson content: %w", err)
	}
	return n, nil
}

// LessonContentBytes reports the total size of stored lesson bodies, used
// for storage-usage reporting.
func (db *DB) LessonContentBytes() (int64, error) {
	var n int64
	if err := db.conn.QueryRow(`SELECT COALESCE(SUM(LENGTH(content)), 0) FROM lesson_content`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to sum lesson content bytes: %w", err)
	}
	return n, nil
}

// AllLessonContent exports every stored lesson.
func (db *DB) AllLessonContent() ([]domain.LessonContent, error) {
	rows, err := db.conn.Query(`
		SELECT id, subject, grade, chapter, topic, title, content,
			language, page_number, textbook_name, downloaded_at, last_accessed
		FROM lesson_content
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to export lesson content: %w", err)
	}
	return collectLessonContent(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLessonContent(row rowScanner) (*domain.LessonContent, error) {
	var lc domain.LessonContent
	var lastAccessed sql.NullTime
	err := row.Scan(
		&lc.ID, &lc.Subject, &lc.Grade, &lc.Chapter, &lc.Topic, &lc.Title, &lc.Content,
		&lc.Language, &lc.PageNumber, &lc.TextbookName, &lc.DownloadedAt, &lastAccessed,
	)
	if err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		lc.LastAccessed = &t
	}
	return &lc, nil
}

func collectLessonContent(rows *sql.Rows) ([]domain.LessonContent, error) {
	defer rows.Close()
	var lessons []domain.LessonContent
	for rows.Next() {
		lc, err := scanLessonContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson content row: %w", err)
		}
		lessons = append(lessons, *lc)
	}
	return lessons, rows.Err()
}
