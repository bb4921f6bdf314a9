package download

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/events"
)

const chunkSize = 32 * 1024

// Progress is the payload of download-progress events.
type Progress struct {
	ContentID       string
	DownloadedBytes int64
	TotalBytes      int64
	Percent         float64
	BytesPerSecond  float64
	ETA             time.Duration
	Speed           string // e.g. "1.2 MB/s"
	Transferred     string // e.g. "3.4 MB of 12 MB"
}

// transfer runs one item's download to completion, retry scheduling or
// failure. It owns the item's inflight slot and releases it on return.
func (m *Manager) transfer(ctx context.Context, item *domain.DownloadItem) {
	defer func() {
		m.mu.Lock()
		delete(m.inflight, item.Content.ID)
		m.mu.Unlock()
	}()

	id := item.Content.ID
	m.publish(events.DownloadStarted, id, nil)

	m.mu.Lock()
	remaining := item.Remaining()
	m.mu.Unlock()

	// Admission check before any byte moves. Capacity exhaustion is not
	// transient, so there is no retry path out of it.
	if !m.guard.HasSpaceFor(remaining) {
		m.failTerminal(item, ErrInsufficientStorage)
		return
	}

	err := m.stream(ctx, item)
	switch {
	case err == nil:
		m.complete(item)
	case errors.Is(err, context.Canceled):
		// User-initiated pause or removal. Status was already updated
		// synchronously by the caller; just checkpoint the byte count if
		// the item still exists.
		m.checkpointAborted(item)
	default:
		m.retryOrFail(item, err)
	}
}

// stream fetches from the item's current offset and appends to the
// part-file, checkpointing byte progress every persist interval.
func (m *Manager) stream(ctx context.Context, item *domain.DownloadItem) error {
	id := item.Content.ID
	part, err := os.OpenFile(m.partPath(id), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open part file for %s: %w", id, err)
	}
	defer part.Close()

	m.mu.Lock()
	offset := item.DownloadedBytes
	m.mu.Unlock()

	// Drop any bytes past the last checkpoint; the resume offset must
	// match what was durably recorded.
	if err := part.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate part file for %s: %w", id, err)
	}
	if _, err := part.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek part file for %s: %w", id, err)
	}

	body, err := m.fetcher.FetchContent(ctx, id, offset)
	if err != nil {
		return err
	}
	defer body.Close()

	buf := make([]byte, chunkSize)
	startedAt := time.Now()
	startOffset := offset
	lastPersist := startedAt
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := part.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write part file for %s: %w", id, err)
			}
			m.mu.Lock()
			item.DownloadedBytes += int64(n)
			snapshot := *item
			m.mu.Unlock()

			now := time.Now()
			if now.Sub(lastPersist) >= m.opts.PersistInterval {
				lastPersist = now
				if err := m.db.SaveDownloadItem(snapshot); err != nil {
					return err
				}
			}
			m.publish(events.DownloadProgress, id, m.progressOf(snapshot, startOffset, startedAt))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("stream for %s broke: %w", id, readErr)
		}
	}

	m.mu.Lock()
	snapshot := *item
	m.mu.Unlock()
	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		return err
	}
	if snapshot.DownloadedBytes != snapshot.Content.Size {
		return fmt.Errorf("stream for %s ended at %d of %d declared bytes",
			id, snapshot.DownloadedBytes, snapshot.Content.Size)
	}
	return nil
}

// complete decodes the finished part-file into a lesson record, persists
// it, and only then marks the queue item completed.
func (m *Manager) complete(item *domain.DownloadItem) {
	id := item.Content.ID
	data, err := os.ReadFile(m.partPath(id))
	if err != nil {
		m.retryOrFail(item, fmt.Errorf("failed to read completed part file for %s: %w", id, err))
		return
	}

	// The hash is recorded for integrity debugging; the backend supplies
	// no checksum to enforce against.
	digest := fmt.Sprintf("%x", sha256.Sum256(data))

	c := item.Content
	now := time.Now().UTC()
	lesson := domain.LessonContent{
		ID:           c.ID,
		Subject:      c.Subject,
		Grade:        c.Grade,
		Chapter:      c.Chapter,
		Topic:        c.Topic,
		Title:        c.Title,
		Content:      string(data),
		Language:     c.Language,
		PageNumber:   c.PageNumber,
		TextbookName: c.TextbookName,
		DownloadedAt: now,
	}
	if err := m.db.PutLessonContent(lesson); err != nil {
		m.retryOrFail(item, err)
		return
	}
	_ = os.Remove(m.partPath(id))

	m.mu.Lock()
	item.Status = domain.StatusCompleted
	item.CompletedAt = &now
	item.Error = ""
	snapshot := *item
	m.mu.Unlock()
	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		slog.Error("failed to persist download completion", "content", id, "error", err)
	}

	slog.Info("download completed", "content", id,
		"size", humanize.Bytes(uint64(c.Size)), "sha256", digest)
	m.publish(events.DownloadCompleted, id, digest)
}

// retryOrFail handles a transient failure: under the cap the item returns
// to pending after an exponential backoff; past it the item fails for good.
func (m *Manager) retryOrFail(item *domain.DownloadItem, cause error) {
	id := item.Content.ID

	m.mu.Lock()
	if item.Status != domain.StatusDownloading {
		// Paused or removed while the failure was in flight; leave the
		// user's status alone.
		m.mu.Unlock()
		return
	}
	item.RetryCount++
	if item.RetryCount > m.opts.RetryCap {
		item.Status = domain.StatusFailed
		item.Error = cause.Error()
		snapshot := *item
		m.mu.Unlock()

		if err := m.db.SaveDownloadItem(snapshot); err != nil {
			slog.Error("failed to persist download failure", "content", id, "error", err)
		}
		slog.Warn("download failed permanently", "content", id,
			"retries", snapshot.RetryCount-1, "error", cause)
		m.publish(events.DownloadFailed, id, cause.Error())
		return
	}

	backoff := m.backoffFor(item.RetryCount)
	item.Status = domain.StatusPending
	item.Error = cause.Error()
	m.notBefore[id] = time.Now().Add(backoff)
	snapshot := *item
	m.mu.Unlock()

	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		slog.Error("failed to persist download retry", "content", id, "error", err)
	}
	slog.Info("download will retry", "content", id, "attempt", snapshot.RetryCount,
		"backoff", backoff, "error", cause)
	m.publish(events.DownloadRetry, id, snapshot.RetryCount)
}

// backoffFor returns the delay before the given retry attempt. The exponent
// is clamped so an oversized configured retry cap cannot overflow the
// duration into an immediate-retry spin.
func (m *Manager) backoffFor(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	return time.Duration(1<<uint(attempt)) * m.opts.BackoffBase
}

// failTerminal records a non-retryable failure such as exhausted storage.
func (m *Manager) failTerminal(item *domain.DownloadItem, cause error) {
	id := item.Content.ID
	m.mu.Lock()
	item.Status = domain.StatusFailed
	item.Error = cause.Error()
	snapshot := *item
	m.mu.Unlock()

	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		slog.Error("failed to persist download failure", "content", id, "error", err)
	}
	slog.Warn("download failed", "content", id, "error", cause)
	m.publish(events.DownloadFailed, id, cause.Error())
}

// checkpointAborted persists the byte count reached before an abort, so a
// later resume continues from the last durable offset.
func (m *Manager) checkpointAborted(item *domain.DownloadItem) {
	m.mu.Lock()
	_, stillQueued := m.byID[item.Content.ID]
	snapshot := *item
	m.mu.Unlock()
	if !stillQueued {
		return
	}
	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		slog.Error("failed to checkpoint paused download", "content", item.Content.ID, "error", err)
	}
}

func (m *Manager) progressOf(item domain.DownloadItem, startOffset int64, startedAt time.Time) Progress {
	p := Progress{
		ContentID:       item.Content.ID,
		DownloadedBytes: item.DownloadedBytes,
		TotalBytes:      item.Content.Size,
		Percent:         item.Percent(),
	}
	elapsed := time.Since(startedAt).Seconds()
	if elapsed > 0 {
		p.BytesPerSecond = float64(item.DownloadedBytes-startOffset) / elapsed
	}
	if p.BytesPerSecond > 0 {
		p.ETA = time.Duration(float64(item.Remaining())/p.BytesPerSecond) * time.Second
	}
	p.Speed = humanize.Bytes(uint64(p.BytesPerSecond)) + "/s"
	p.Transferred = fmt.Sprintf("%s of %s",
		humanize.Bytes(uint64(item.DownloadedBytes)), humanize.Bytes(uint64(item.Content.Size)))
	return p
}
