// Package download turns a learner's content selection into locally
// available, byte-verified lesson text. Transfers resume across pauses,
// connectivity loss and app restarts; partial bytes spool to a part-file
// next to the database so a crash loses at most one persistence interval.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/events"
	"github.com/shikkhasathi/offline/internal/storage"
)

// ErrInsufficientStorage marks a capacity failure. It is terminal: unlike
// a network error, more retries cannot make room.
var ErrInsufficientStorage = errors.New("insufficient storage for download")

// Fetcher is the slice of the backend client the manager needs.
type Fetcher interface {
	DiscoverContent(ctx context.Context, sel domain.ContentSelection) ([]domain.DownloadableContent, error)
	FetchContent(ctx context.Context, id string, offset int64) (io.ReadCloser, error)
}

// SpaceChecker is the quota guard surface used for admission control.
type SpaceChecker interface {
	HasSpaceFor(n int64) bool
}

// Options tunes the manager. Zero values select the defaults.
type Options struct {
	Concurrency     int           // simultaneous transfers, default 2
	RetryCap        int           // transient-failure retries per item, default 3
	PollInterval    time.Duration // runner wake-up when no slot or work, default 500ms
	PersistInterval time.Duration // byte-progress checkpoint period, default 1s
	BackoffBase     time.Duration // unit for the 2^n retry delay, default 1s
	PartDir         string        // where partial transfers spool
}

func (o *Options) fillDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
}

// Manager owns the persisted download queue and its runner.
type Manager struct {
	db       *storage.DB
	fetcher  Fetcher
	guard    SpaceChecker
	bus      *events.Bus
	opts     Options
	validate *validator.Validate

	mu        sync.Mutex
	items     []*domain.DownloadItem
	byID      map[string]*domain.DownloadItem
	inflight  map[string]context.CancelFunc
	notBefore map[string]time.Time // retry backoff gates
	active    bool
	stop      chan struct{}
}

// NewManager loads the persisted queue and applies restart recovery: any
// item left in downloading state by a previous session drops back to
// pending, and the queue starts inactive until Start is called.
func NewManager(db *storage.DB, fetcher Fetcher, guard SpaceChecker, bus *events.Bus, opts Options) (*Manager, error) {
	opts.fillDefaults()
	if opts.PartDir != "" {
		if err := os.MkdirAll(opts.PartDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create part dir: %w", err)
		}
	}

	m := &Manager{
		db:        db,
		fetcher:   fetcher,
		guard:     guard,
		bus:       bus,
		opts:      opts,
		validate:  validator.New(),
		byID:      make(map[string]*domain.DownloadItem),
		inflight:  make(map[string]context.CancelFunc),
		notBefore: make(map[string]time.Time),
	}

	persisted, err := db.ListDownloadItems()
	if err != nil {
		return nil, err
	}
	for i := range persisted {
		item := persisted[i]
		if item.Status == domain.StatusDownloading {
			item.Status = domain.StatusPending
			if err := db.SaveDownloadItem(item); err != nil {
				return nil, err
			}
			slog.Info("recovered interrupted download", "content", item.Content.ID,
				"bytes", item.DownloadedBytes)
		}
		m.items = append(m.items, &item)
		m.byID[item.Content.ID] = &item
	}
	return m, nil
}

// Discover asks the backend which content matches the selection. Only
// descriptors come back; nothing is queued until Enqueue.
func (m *Manager) Discover(ctx context.Context, sel domain.ContentSelection) ([]domain.DownloadableContent, error) {
	if err := m.validate.Struct(sel); err != nil {
		return nil, fmt.Errorf("invalid content selection: %w", err)
	}
	return m.fetcher.DiscoverContent(ctx, sel)
}

// Enqueue adds descriptors to the queue, skipping anything already queued
// or already fully downloaded, and starts the runner if it is idle.
// Returns how many items were actually added.
func (m *Manager) Enqueue(contents []domain.DownloadableContent) (int, error) {
	added := 0
	for _, c := range contents {
		if err := m.validate.Struct(c); err != nil {
			return added, fmt.Errorf("invalid content descriptor %q: %w", c.ID, err)
		}

		m.mu.Lock()
		_, queued := m.byID[c.ID]
		m.mu.Unlock()
		if queued {
			continue
		}
		have, err := m.db.HasLessonContent(c.ID)
		if err != nil {
			return added, err
		}
		if have {
			continue
		}

		item := &domain.DownloadItem{
			Content:  c,
			Status:   domain.StatusPending,
			QueuedAt: time.Now().UTC(),
		}
		if err := m.db.SaveDownloadItem(*item); err != nil {
			return added, err
		}
		m.mu.Lock()
		m.items = append(m.items, item)
		m.byID[c.ID] = item
		m.mu.Unlock()
		added++
	}

	if added > 0 {
		m.publish(events.QueueUpdated, "", nil)
		m.Start()
	}
	return added, nil
}

// Start activates the queue runner. Safe to call when already running.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.publish(events.QueueStarted, "", nil)
	go m.run(stop)
}

// Stop deactivates the runner without touching item state. In-flight
// transfers keep running to completion; nothing new starts.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	close(m.stop)
	m.mu.Unlock()
}

// run keeps up to Concurrency items in flight, pulling the next eligible
// pending item in queue order whenever a slot frees. It polls at a coarse
// interval instead of busy-spinning, and deactivates itself once no work
// is pending or in flight.
func (m *Manager) run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}

		started := m.fillSlots()
		if !started && m.drained() {
			m.Stop()
			m.publish(events.QueueCompleted, "", nil)
			return
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// fillSlots starts eligible pending items until the concurrency bound is
// reached. Reports whether anything was started.
func (m *Manager) fillSlots() bool {
	started := false
	for {
		m.mu.Lock()
		if len(m.inflight) >= m.opts.Concurrency {
			m.mu.Unlock()
			return started
		}
		item := m.nextEligibleLocked()
		if item == nil {
			m.mu.Unlock()
			return started
		}

		item.Status = domain.StatusDownloading
		now := time.Now().UTC()
		item.StartedAt = &now
		ctx, cancel := context.WithCancel(context.Background())
		m.inflight[item.Content.ID] = cancel
		snapshot := *item
		m.mu.Unlock()

		if err := m.db.SaveDownloadItem(snapshot); err != nil {
			slog.Error("failed to persist download start", "content", item.Content.ID, "error", err)
		}
		started = true
		go m.transfer(ctx, item)
	}
}

func (m *Manager) nextEligibleLocked() *domain.DownloadItem {
	now := time.Now()
	for _, item := range m.items {
		if item.Status != domain.StatusPending {
			continue
		}
		if _, running := m.inflight[item.Content.ID]; running {
			continue
		}
		if nb, ok := m.notBefore[item.Content.ID]; ok && now.Before(nb) {
			continue
		}
		return item
	}
	return nil
}

// drained reports whether no item is pending or in flight.
func (m *Manager) drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inflight) > 0 {
		return false
	}
	for _, item := range m.items {
		if item.Status == domain.StatusPending || item.Status == domain.StatusDownloading {
			return false
		}
	}
	return true
}

// Pause aborts an in-flight transfer (or parks a pending item) and records
// the paused status synchronously. Pausing is not a failure: no error
// event follows, and the resume point is the last persisted byte count.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	item, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return storage.ErrNotFound
	}
	if item.Status != domain.StatusDownloading && item.Status != domain.StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("cannot pause download in status %s", item.Status)
	}
	item.Status = domain.StatusPaused
	cancel := m.inflight[id]
	snapshot := *item
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		return err
	}
	m.publish(events.DownloadPaused, id, nil)
	return nil
}

// Resume returns a paused item to the pending pool.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	item, ok := m.byID[id]
	if !ok || item.Status != domain.StatusPaused {
		m.mu.Unlock()
		return fmt.Errorf("no paused download for %q", id)
	}
	item.Status = domain.StatusPending
	delete(m.notBefore, id)
	snapshot := *item
	m.mu.Unlock()

	if err := m.db.SaveDownloadItem(snapshot); err != nil {
		return err
	}
	m.publish(events.QueueUpdated, id, nil)
	m.Start()
	return nil
}

// Remove aborts and deletes a queue item and its partial bytes. Stored
// lesson content is untouched; see RemoveContent.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	item, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return storage.ErrNotFound
	}
	cancel := m.inflight[id]
	delete(m.byID, id)
	delete(m.notBefore, id)
	for i, it := range m.items {
		if it == item {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.db.DeleteDownloadItem(id); err != nil {
		return err
	}
	_ = os.Remove(m.partPath(id))
	m.publish(events.QueueUpdated, id, nil)
	return nil
}

// RemoveContent deletes a downloaded lesson from the store, along with any
// queue entry for it.
func (m *Manager) RemoveContent(id string) error {
	m.mu.Lock()
	_, queued := m.byID[id]
	m.mu.Unlock()
	if queued {
		if err := m.Remove(id); err != nil {
			return err
		}
	}
	if err := m.db.DeleteLessonContent(id); err != nil {
		return err
	}
	m.publish(events.ContentDeleted, id, nil)
	return nil
}

// Clear aborts everything and empties the queue.
func (m *Manager) Clear() error {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.inflight))
	for _, cancel := range m.inflight {
		cancels = append(cancels, cancel)
	}
	ids := make([]string, 0, len(m.items))
	for _, item := range m.items {
		ids = append(ids, item.Content.ID)
	}
	m.items = nil
	m.byID = make(map[string]*domain.DownloadItem)
	m.notBefore = make(map[string]time.Time)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.Stop()
	if err := m.db.ClearDownloadQueue(); err != nil {
		return err
	}
	for _, id := range ids {
		_ = os.Remove(m.partPath(id))
	}
	m.publish(events.QueueCleared, "", nil)
	return nil
}

// Items returns a snapshot of the queue in enqueue order.
func (m *Manager) Items() []domain.DownloadItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DownloadItem, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, *item)
	}
	return out
}

// Item returns a snapshot of one queue entry.
func (m *Manager) Item(id string) (domain.DownloadItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.byID[id]
	if !ok {
		return domain.DownloadItem{}, false
	}
	return *item, true
}

// Active reports whether the runner is live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) partPath(id string) string {
	return filepath.Join(m.opts.PartDir, id+".part")
}

func (m *Manager) publish(t events.Type, id string, payload any) {
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: t, ID: id, Payload: payload})
	}
}
