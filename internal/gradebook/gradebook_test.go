package gradebook

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/storage"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExportWritesBothSheets(t *testing.T) {
	db := newTestDB(t)
	completed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := db.PutQuizAttempt(domain.QuizAttempt{
		ID: "a-1", UserID: "u-1", QuizID: "q-1", Subject: "math", Topic: "algebra",
		Questions: []domain.QuestionSnapshot{
			{Question: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1, ChosenIndex: 1},
		},
		Score: 8, MaxScore: 10, TimeTaken: 120, Difficulty: "medium",
		CompletedAt: completed, Synced: true,
	}); err != nil {
		t.Fatalf("PutQuizAttempt failed: %v", err)
	}
	if err := db.PutProgress(domain.Progress{
		UserID: "u-1", Subject: "math", Topic: "algebra",
		Completion: 75.5, TimeSpent: 3600, Mastery: "practicing",
		LastAccessed: completed,
	}); err != nil {
		t.Fatalf("PutProgress failed: %v", err)
	}
	// Another learner's data must not leak into the export.
	if err := db.PutQuizAttempt(domain.QuizAttempt{
		ID: "a-other", UserID: "u-2", QuizID: "q-1", Subject: "math", Topic: "algebra",
		Score: 1, MaxScore: 10, TimeTaken: 60, Difficulty: "easy",
		CompletedAt: completed,
	}); err != nil {
		t.Fatalf("PutQuizAttempt failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "gradebook.xlsx")
	if err := Export(db, "u-1", path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("exported workbook unreadable: %v", err)
	}
	defer f.Close()

	attempts, err := f.GetRows("Attempts")
	if err != nil {
		t.Fatalf("Attempts sheet missing: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected header + 1 attempt row, got %d rows", len(attempts))
	}
	if attempts[1][0] != "a-1" || attempts[1][2] != "math" {
		t.Fatalf("unexpected attempt row: %v", attempts[1])
	}

	progress, err := f.GetRows("Progress")
	if err != nil {
		t.Fatalf("Progress sheet missing: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("expected header + 1 progress row, got %d rows", len(progress))
	}
	if progress[1][0] != "math" || progress[1][4] != "practicing" {
		t.Fatalf("unexpected progress row: %v", progress[1])
	}
}

func TestImportProgressRoundTrip(t *testing.T) {
	db := newTestDB(t)
	accessed := time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)
	want := domain.Progress{
		UserID: "u-1", Subject: "physics", Topic: "motion",
		Completion: 40, TimeSpent: 1800, Mastery: "learning",
		LastAccessed: accessed,
	}
	if err := db.PutProgress(want); err != nil {
		t.Fatalf("PutProgress failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "gradebook.xlsx")
	if err := Export(db, "u-1", path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Import into a fresh store under a different user.
	db2 := newTestDB(t)
	result, err := ImportProgress(db2, "u-9", path)
	if err != nil {
		t.Fatalf("ImportProgress failed: %v", err)
	}
	if result.Imported != 1 || len(result.Skipped) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, err := db2.GetProgress("u-9", "physics", "motion")
	if err != nil {
		t.Fatalf("imported record missing: %v", err)
	}
	if got.Completion != want.Completion || got.TimeSpent != want.TimeSpent || got.Mastery != want.Mastery {
		t.Fatalf("imported record mismatch: %+v", got)
	}
	if got.Synced {
		t.Fatalf("imported records must start unsynced")
	}
}

func TestImportProgressSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	f := excelize.NewFile()
	if _, err := f.NewSheet("Progress"); err != nil {
		t.Fatalf("NewSheet failed: %v", err)
	}
	rows := [][]any{
		{"Subject", "Topic", "Completion %", "Time Spent (s)", "Mastery", "Last Accessed"},
		{"math", "algebra", "not-a-number", "60", "learning", "2026-07-01T00:00:00Z"},
		{"math", "geometry", "80", "bad", "learning", "2026-07-01T00:00:00Z"},
		{"math"},
		{"math", "trig", "50", "120", "learning", "2026-07-01T00:00:00Z"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName failed: %v", err)
		}
		if err := f.SetSheetRow("Progress", cell, &row); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	_ = f.Close()

	db := newTestDB(t)
	result, err := ImportProgress(db, "u-1", path)
	if err != nil {
		t.Fatalf("ImportProgress failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected 1 imported row, got %d", result.Imported)
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("expected 3 skipped rows, got %v", result.Skipped)
	}
}
