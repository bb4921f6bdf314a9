// Package syncq bridges "locally durable" and "server durable". UI actions
// land in a persisted FIFO queue and in the local store as unsynced
// records; the manager replays the queue against the backend whenever
// connectivity allows. Items have no terminal failure state: a failing
// item stays queued until it delivers or the user discards it.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shikkhasathi/offline/internal/api"
	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/events"
	"github.com/shikkhasathi/offline/internal/storage"
)

// Deliverer is the slice of the backend client the manager needs; one call
// per sync kind. *api.Client satisfies it.
type Deliverer interface {
	SubmitQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error
	UpdateProgress(ctx context.Context, p *domain.Progress) error
	PostChatMessage(ctx context.Context, m *domain.ChatMessage) error
}

// Options tunes the manager.
type Options struct {
	// DeliveryTimeout bounds each per-item network call during a drain.
	DeliveryTimeout time.Duration
}

// Manager owns the durable sync queue.
type Manager struct {
	db      *storage.DB
	client  Deliverer
	monitor Connectivity
	bus     *events.Bus
	timeout time.Duration

	// lifetime bounds the background drains the manager starts itself;
	// Close cancels it so shutdown does not wait on a queue replay.
	lifetime context.Context
	cancel   context.CancelFunc

	drainMu sync.Mutex // serializes drain passes

	mu              sync.Mutex
	failedLastDrain int
}

// NewManager wires the queue to its store, backend client and connectivity
// monitor. An offline-to-online transition triggers a full drain.
func NewManager(db *storage.DB, client Deliverer, monitor Connectivity, bus *events.Bus, opts Options) *Manager {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	lifetime, cancel := context.WithCancel(context.Background())
	m := &Manager{
		db:       db,
		client:   client,
		monitor:  monitor,
		bus:      bus,
		timeout:  opts.DeliveryTimeout,
		lifetime: lifetime,
		cancel:   cancel,
	}
	monitor.OnOnline(func() {
		if err := m.Drain(m.lifetime); err != nil {
			slog.Warn("drain after reconnect left items queued", "error", err)
		}
	})
	return m
}

// Close stops the manager's own background drains. Queued items stay
// durable; the next session picks them up.
func (m *Manager) Close() {
	m.cancel()
}

// Enqueue writes the item's record to the local store as unsynced truth,
// appends a durable queue entry, and — when online — kicks off a drain in
// the background. A blank item id gets a generated one; the id travels
// with every retry so the backend can dedupe redelivery.
func (m *Manager) Enqueue(ctx context.Context, item domain.SyncItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	if err := m.putRecord(item); err != nil {
		return err
	}
	if err := m.db.AppendSyncItem(item); err != nil {
		return err
	}
	slog.Debug("sync item enqueued", "id", item.ID, "kind", item.Kind)

	if m.monitor.Online() {
		go func() {
			if err := m.Drain(m.lifetime); err != nil {
				slog.Debug("immediate drain left items queued", "error", err)
			}
		}()
	}
	return nil
}

// putRecord persists the local record behind the queue item with
// synced=false, making it the durable source of truth before any network
// attempt.
func (m *Manager) putRecord(item domain.SyncItem) error {
	switch item.Kind {
	case domain.SyncQuizAttempt:
		a := *item.Attempt
		a.Synced = false
		return m.db.PutQuizAttempt(a)
	case domain.SyncProgressUpdate:
		p := *item.Progress
		p.Synced = false
		return m.db.PutProgress(p)
	case domain.SyncChatMessage:
		msg := *item.Message
		msg.Synced = false
		return m.db.PutChatMessage(msg)
	}
	return domain.ErrUnknownSyncKind
}

// Drain attempts delivery of every currently queued item, in enqueue
// order. A failing item stays queued for the next pass; the pass moves on
// to the following item rather than spinning on the failure. Returns the
// first delivery error, for reporting only.
func (m *Manager) Drain(ctx context.Context) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	items, err := m.db.ListSyncItems()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var firstErr error
	delivered, failed := 0, 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		if err := m.deliver(ctx, item); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			var apiErr *api.APIError
			if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
				// Permanent rejection. The item still stays queued; discarding
				// unsynced data without the user's say-so is not an option.
				slog.Warn("sync item rejected by backend, keeping queued",
					"id", item.ID, "kind", item.Kind, "status", apiErr.StatusCode)
			} else {
				slog.Debug("sync delivery failed, keeping queued", "id", item.ID, "error", err)
			}
			continue
		}
		delivered++
	}

	m.mu.Lock()
	m.failedLastDrain = failed
	m.mu.Unlock()

	slog.Info("sync queue drained", "delivered", delivered, "failed", failed)
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: events.SyncDrained, Payload: map[string]int{
			"delivered": delivered,
			"failed":    failed,
		}})
	}
	return firstErr
}

// deliver performs the network call for one item and, on success, marks the
// underlying record synced and removes the queue entry.
func (m *Manager) deliver(ctx context.Context, item domain.SyncItem) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	switch item.Kind {
	case domain.SyncQuizAttempt:
		err = m.client.SubmitQuizAttempt(callCtx, item.Attempt)
	case domain.SyncProgressUpdate:
		err = m.client.UpdateProgress(callCtx, item.Progress)
	case domain.SyncChatMessage:
		err = m.client.PostChatMessage(callCtx, item.Message)
	default:
		err = domain.ErrUnknownSyncKind
	}
	if err != nil {
		return err
	}

	if err := m.markSynced(item); err != nil {
		return err
	}
	if err := m.db.DeleteSyncItem(item.ID); err != nil {
		return fmt.Errorf("delivered sync item %s could not be dequeued: %w", item.ID, err)
	}
	return nil
}

func (m *Manager) markSynced(item domain.SyncItem) error {
	switch item.Kind {
	case domain.SyncQuizAttempt:
		return m.db.MarkQuizAttemptSynced(item.Attempt.ID)
	case domain.SyncProgressUpdate:
		return m.db.MarkProgressSynced(item.Progress.UserID, item.Progress.Subject, item.Progress.Topic)
	case domain.SyncChatMessage:
		return m.db.MarkChatMessageSynced(item.Message.ID)
	}
	return domain.ErrUnknownSyncKind
}

// Discard removes a queue item without delivering it. This is the only
// path that drops an undelivered item, and it is always an explicit user
// action.
func (m *Manager) Discard(id string) error {
	return m.db.DeleteSyncItem(id)
}

// PendingCount reports how many items await delivery.
func (m *Manager) PendingCount() (int, error) {
	return m.db.CountSyncItems()
}

// FailedLastDrain reports how many items failed in the most recent drain
// pass; the UI surfaces this as an error count.
func (m *Manager) FailedLastDrain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedLastDrain
}
