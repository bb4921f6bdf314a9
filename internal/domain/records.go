package domain

import "time"

// User is the offline mirror of the authenticated learner's profile.
// It is overwritten wholesale on every successful profile sync.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Grade    int       `json:"grade"`
	Medium   string    `json:"medium"` // instruction language, e.g. "bangla", "english"
	XP       int       `json:"xp"`
	Level    int       `json:"level"`
	Streak   int       `json:"streak"`
	LastSync time.Time `json:"lastSync"`
}

// LessonContent is a fully downloaded lesson body plus its display metadata.
// The content body is immutable once written; only LastAccessed is updated
// afterwards, and that is what the retention sweep keys on.
type LessonContent struct {
	ID           string     `json:"id"`
	Subject      string     `json:"subject"`
	Grade        int        `json:"grade"`
	Chapter      string     `json:"chapter"`
	Topic        string     `json:"topic"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Language     string     `json:"language"`
	PageNumber   int        `json:"pageNumber,omitempty"`
	TextbookName string     `json:"textbookName,omitempty"`
	DownloadedAt time.Time  `json:"downloadedAt"`
	LastAccessed *time.Time `json:"lastAccessed,omitempty"`
}

// QuestionSnapshot freezes one question as the learner saw it, including
// the answer they chose. ChosenIndex is -1 when the question was skipped.
type QuestionSnapshot struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	ChosenIndex  int      `json:"chosenIndex"`
}

// QuizAttempt records one completed quiz, online or offline. Synced flips
// false to true exactly once, when the backend acknowledges receipt.
type QuizAttempt struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	QuizID      string             `json:"quizId"`
	Subject     string             `json:"subject"`
	Topic       string             `json:"topic"`
	Questions   []QuestionSnapshot `json:"questions"`
	Score       int                `json:"score"`
	MaxScore    int                `json:"maxScore"`
	TimeTaken   int                `json:"timeTaken"` // seconds
	Difficulty  string             `json:"difficulty"`
	CompletedAt time.Time          `json:"completedAt"`
	Synced      bool               `json:"synced"`
}

// Progress is the per (user, subject, topic) mastery record. It is upserted
// on every local change, which also clears the synced flag.
type Progress struct {
	UserID       string    `json:"userId"`
	Subject      string    `json:"subject"`
	Topic        string    `json:"topic"`
	Completion   float64   `json:"completion"` // 0..100
	TimeSpent    int       `json:"timeSpent"`  // seconds
	LastAccessed time.Time `json:"lastAccessed"`
	Mastery      string    `json:"mastery"`
	Synced       bool      `json:"synced"`
}

// Key returns the composite primary key used by the store.
func (p Progress) Key() string {
	return p.UserID + "|" + p.Subject + "|" + p.Topic
}

// ChatMessage is a locally cached tutor-chat message.
type ChatMessage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Role       string    `json:"role"` // "user" or "assistant"
	Content    string    `json:"content"`
	Sources    []string  `json:"sources,omitempty"`
	VoiceInput bool      `json:"voiceInput"`
	Timestamp  time.Time `json:"timestamp"`
	Synced     bool      `json:"synced"`
}

// Achievement is an unlock record awaiting (or past) server acknowledgment.
type Achievement struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	XPReward   int       `json:"xpReward"`
	UnlockedAt time.Time `json:"unlockedAt"`
	Synced     bool      `json:"synced"`
}
