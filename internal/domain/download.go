package domain

import "time"

// ContentSelection filters backend content discovery.
type ContentSelection struct {
	Subject  string   `json:"subject" validate:"required"`
	Grade    int      `json:"grade" validate:"gt=0"`
	Chapters []string `json:"chapters,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Language string   `json:"language,omitempty"`
}

// DownloadableContent describes one downloadable lesson as reported by the
// backend. Size is the declared byte length and drives admission control.
type DownloadableContent struct {
	ID           string `json:"id" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	Grade        int    `json:"grade" validate:"gt=0"`
	Chapter      string `json:"chapter"`
	Topic        string `json:"topic"`
	Title        string `json:"title"`
	Size         int64  `json:"size" validate:"gt=0"`
	Language     string `json:"language"`
	TextbookName string `json:"textbookName,omitempty"`
	PageNumber   int    `json:"pageNumber,omitempty"`
}

// DownloadStatus is the lifecycle state of a queued download.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusPaused      DownloadStatus = "paused"
)

// DownloadItem wraps a content descriptor with mutable transfer state. It
// lives in the persisted download queue, not in the lesson content table,
// so an interrupted session can resume where it left off.
type DownloadItem struct {
	Content         DownloadableContent `json:"content"`
	Status          DownloadStatus      `json:"status"`
	DownloadedBytes int64               `json:"downloadedBytes"`
	QueuedAt        time.Time           `json:"queuedAt"`
	StartedAt       *time.Time          `json:"startedAt,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Error           string              `json:"error,omitempty"`
	RetryCount      int                 `json:"retryCount"`
}

// Remaining reports the bytes not yet transferred.
func (d DownloadItem) Remaining() int64 {
	if r := d.Content.Size - d.DownloadedBytes; r > 0 {
		return r
	}
	return 0
}

// Percent reports transfer completion in [0,100].
func (d DownloadItem) Percent() float64 {
	if d.Content.Size <= 0 {
		return 0
	}
	return float64(d.DownloadedBytes) / float64(d.Content.Size) * 100
}
