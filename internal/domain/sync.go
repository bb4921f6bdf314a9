package domain

import (
	"errors"
	"time"
)

// SyncKind tags a queued mutation with the delivery endpoint it belongs to.
type SyncKind string

const (
	SyncQuizAttempt    SyncKind = "quiz-attempt"
	SyncProgressUpdate SyncKind = "progress-update"
	SyncChatMessage    SyncKind = "chat-message"
)

// ErrUnknownSyncKind is returned for an item whose kind/payload pairing is
// not one of the closed set above.
var ErrUnknownSyncKind = errors.New("unknown sync kind")

// SyncItem is one durable entry in the sync queue. Exactly one of the
// payload pointers matching Kind must be set; the others stay nil. Using a
// closed set of typed payloads instead of a loose bag of fields keeps shape
// errors out of the replay path.
type SyncItem struct {
	ID         string       `json:"id"`
	Kind       SyncKind     `json:"kind"`
	EnqueuedAt time.Time    `json:"enqueuedAt"`
	Attempt    *QuizAttempt `json:"attempt,omitempty"`
	Progress   *Progress    `json:"progress,omitempty"`
	Message    *ChatMessage `json:"message,omitempty"`
}

// NewQuizAttemptItem builds a sync item carrying a quiz attempt.
func NewQuizAttemptItem(a QuizAttempt) SyncItem {
	return SyncItem{Kind: SyncQuizAttempt, Attempt: &a}
}

// NewProgressItem builds a sync item carrying a progress update.
func NewProgressItem(p Progress) SyncItem {
	return SyncItem{Kind: SyncProgressUpdate, Progress: &p}
}

// NewChatMessageItem builds a sync item carrying a chat message.
func NewChatMessageItem(m ChatMessage) SyncItem {
	return SyncItem{Kind: SyncChatMessage, Message: &m}
}

// Validate checks that the item's kind matches the payload it carries.
func (s SyncItem) Validate() error {
	switch s.Kind {
	case SyncQuizAttempt:
		if s.Attempt == nil {
			return errors.New("quiz-attempt item has no attempt payload")
		}
	case SyncProgressUpdate:
		if s.Progress == nil {
			return errors.New("progress-update item has no progress payload")
		}
	case SyncChatMessage:
		if s.Message == nil {
			return errors.New("chat-message item has no message payload")
		}
	default:
		return ErrUnknownSyncKind
	}
	return nil
}
