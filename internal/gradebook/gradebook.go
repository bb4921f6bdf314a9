// Package gradebook exports a learner's locally stored quiz attempts and
// mastery records to an xlsx workbook, and imports mastery records back.
package gradebook

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/storage"
)

const (
	attemptsSheet = "Attempts"
	progressSheet = "Progress"
)

var attemptsHeader = []string{
	"Attempt ID", "Quiz ID", "Subject", "Topic", "Score", "Max Score",
	"Time Taken (s)", "Difficulty", "Completed At", "Synced",
}

var progressHeader = []string{
	"Subject", "Topic", "Completion %", "Time Spent (s)", "Mastery", "Last Accessed",
}

// Export writes a user's attempts and progress to an xlsx workbook at path.
func Export(db *storage.DB, userID, path string) error {
	attempts, err := db.QuizAttemptsByUser(userID)
	if err != nil {
		return err
	}
	progress, err := db.ProgressByUser(userID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attemptsSheet); err != nil {
		return fmt.Errorf("failed to rename attempts sheet: %w", err)
	}
	if err := writeRow(f, attemptsSheet, 1, toAny(attemptsHeader)); err != nil {
		return err
	}
	for i, a := range attempts {
		row := []any{
			a.ID, a.QuizID, a.Subject, a.Topic, a.Score, a.MaxScore,
			a.TimeTaken, a.Difficulty, a.CompletedAt.Format(time.RFC3339), a.Synced,
		}
		if err := writeRow(f, attemptsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(progressSheet); err != nil {
		return fmt.Errorf("failed to create progress sheet: %w", err)
	}
	if err := writeRow(f, progressSheet, 1, toAny(progressHeader)); err != nil {
		return err
	}
	for i, p := range progress {
		row := []any{
			p.Subject, p.Topic, p.Completion, p.TimeSpent, p.Mastery,
			p.LastAccessed.Format(time.RFC3339),
		}
		if err := writeRow(f, progressSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save gradebook %s: %w", path, err)
	}
	return nil
}

// ImportResult reports what an import touched.
type ImportResult struct {
	Imported int
	Skipped  []string
}

// ImportProgress reads a Progress sheet back into the store for a user.
// Imported records are unsynced local mutations, so the sync queue will
// pick them up like any other progress change.
func ImportProgress(db *storage.DB, userID, path string) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gradebook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(progressSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress sheet: %w", err)
	}

	result := &ImportResult{}
	for i, row := range rows {
		if i == 0 { // header
			continue
		}
		if len(row) < 6 {
			result.Skipped = append(result.Skipped, fmt.Sprintf("row %d: too few columns", i+1))
			continue
		}
		completion, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("row %d: bad completion %q", i+1, row[2]))
			continue
		}
		timeSpent, err := strconv.Atoi(row[3])
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("row %d: bad time spent %q", i+1, row[3]))
			continue
		}
		lastAccessed, err := time.Parse(time.RFC3339, row[5])
		if err != nil {
			lastAccessed = time.Now().UTC()
		}

		p := domain.Progress{
			UserID:       userID,
			Subject:      row[0],
			Topic:        row[1],
			Completion:   completion,
			TimeSpent:    timeSpent,
			Mastery:      row[4],
			LastAccessed: lastAccessed,
			Synced:       false,
		}
		if err := db.PutProgress(p); err != nil {
			return result, err
		}
		result.Imported++
	}
	return result, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
