package syncq

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shikkhasathi/offline/internal/domain"
	"github.com/shikkhasathi/offline/internal/storage"
)

type stubMonitor struct {
	mu        sync.Mutex
	online    bool
	callbacks []func()
}

func (s *stubMonitor) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *stubMonitor) OnOnline(fn func()) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

func (s *stubMonitor) goOnline() {
	s.mu.Lock()
	s.online = true
	fns := append([]func(){}, s.callbacks...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fakeDeliverer records delivery order and fails ids listed in failing.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	failing   map[string]error
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{failing: make(map[string]error)}
}

func (f *fakeDeliverer) record(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[id]; ok {
		return err
	}
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeDeliverer) SubmitQuizAttempt(_ context.Context, a *domain.QuizAttempt) error {
	return f.record(a.ID)
}

func (f *fakeDeliverer) UpdateProgress(_ context.Context, p *domain.Progress) error {
	return f.record(p.Key())
}

func (f *fakeDeliverer) PostChatMessage(_ context.Context, m *domain.ChatMessage) error {
	return f.record(m.ID)
}

func (f *fakeDeliverer) deliveredIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.delivered...)
}

func newTestManager(t *testing.T, monitor Connectivity, deliverer Deliverer) (*Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db, deliverer, monitor, nil, Options{DeliveryTimeout: time.Second}), db
}

func sampleAttempt(id string) domain.QuizAttempt {
	return domain.QuizAttempt{
		ID: id, UserID: "user-1", QuizID: "quiz-1", Subject: "math", Topic: "algebra",
		Questions: []domain.QuestionSnapshot{
			{Question: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1, ChosenIndex: 1},
		},
		Score: 1, MaxScore: 1, TimeTaken: 30, Difficulty: "easy",
		CompletedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestOfflineQuizAttemptSyncsAfterReconnect(t *testing.T) {
	monitor := &stubMonitor{}
	deliverer := newFakeDeliverer()
	m, db := newTestManager(t, monitor, deliverer)

	// Offline: the attempt lands durably with synced=false and stays queued.
	if err := m.Enqueue(context.Background(), domain.NewQuizAttemptItem(sampleAttempt("a-1"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	stored, err := db.GetQuizAttempt("a-1")
	if err != nil {
		t.Fatalf("attempt not stored locally: %v", err)
	}
	if stored.Synced {
		t.Fatalf("attempt must start unsynced")
	}
	pending, err := m.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 queued item, got %d", pending)
	}
	if len(deliverer.deliveredIDs()) != 0 {
		t.Fatalf("nothing should be delivered while offline")
	}

	// Reconnect triggers a full drain.
	monitor.goOnline()

	stored, err = db.GetQuizAttempt("a-1")
	if err != nil {
		t.Fatalf("attempt disappeared: %v", err)
	}
	if !stored.Synced {
		t.Fatalf("attempt should be synced after drain")
	}
	pending, err = m.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 0 {
		t.Fatalf("queue should be empty after drain, got %d", pending)
	}
}

func TestDrainLeavesFailingItemsQueued(t *testing.T) {
	monitor := &stubMonitor{}
	deliverer := newFakeDeliverer()
	deliverer.failing["a-bad"] = errors.New("connection reset")
	m, db := newTestManager(t, monitor, deliverer)

	ctx := context.Background()
	if err := m.Enqueue(ctx, domain.NewQuizAttemptItem(sampleAttempt("a-bad"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := m.Enqueue(ctx, domain.NewQuizAttemptItem(sampleAttempt("a-good"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := m.Drain(ctx); err == nil {
		t.Fatalf("expected drain to report the failure")
	}

	// The failing item stays queued; the pass still delivered the rest.
	pending, err := m.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 item left queued, got %d", pending)
	}
	if m.FailedLastDrain() != 1 {
		t.Fatalf("expected 1 failure reported, got %d", m.FailedLastDrain())
	}
	good, err := db.GetQuizAttempt("a-good")
	if err != nil || !good.Synced {
		t.Fatalf("good item should be synced: %+v err=%v", good, err)
	}

	// Once the backend recovers, the next pass delivers the leftover.
	deliverer.mu.Lock()
	delete(deliverer.failing, "a-bad")
	deliverer.mu.Unlock()
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	pending, _ = m.PendingCount()
	if pending != 0 {
		t.Fatalf("queue should now be empty, got %d", pending)
	}
}

func TestDrainDeliversInEnqueueOrder(t *testing.T) {
	monitor := &stubMonitor{}
	deliverer := newFakeDeliverer()
	m, _ := newTestManager(t, monitor, deliverer)

	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"m-1", "m-2", "m-3"} {
		msg := domain.ChatMessage{
			ID: id, UserID: "u", Role: "user", Content: "msg", Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := m.Enqueue(ctx, domain.NewChatMessageItem(msg)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	got := deliverer.deliveredIDs()
	want := []string{"m-1", "m-2", "m-3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order broken: got %v, want %v", got, want)
		}
	}
}

func TestEnqueueGeneratesIDAndValidates(t *testing.T) {
	monitor := &stubMonitor{}
	m, db := newTestManager(t, monitor, newFakeDeliverer())
	ctx := context.Background()

	// Mismatched kind/payload is rejected before anything is persisted.
	if err := m.Enqueue(ctx, domain.SyncItem{Kind: domain.SyncQuizAttempt}); err == nil {
		t.Fatalf("expected validation error for missing payload")
	}

	item := domain.NewProgressItem(domain.Progress{
		UserID: "u", Subject: "math", Topic: "algebra",
		Completion: 50, LastAccessed: time.Unix(1700000000, 0).UTC(), Mastery: "learning",
	})
	if err := m.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	items, err := db.ListSyncItems()
	if err != nil {
		t.Fatalf("ListSyncItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID == "" {
		t.Fatalf("expected one item with a generated id, got %+v", items)
	}
	if items[0].EnqueuedAt.IsZero() {
		t.Fatalf("expected an enqueue timestamp")
	}
}

func TestDiscardDropsItemWithoutDelivery(t *testing.T) {
	monitor := &stubMonitor{}
	deliverer := newFakeDeliverer()
	m, _ := newTestManager(t, monitor, deliverer)
	ctx := context.Background()

	item := domain.NewChatMessageItem(domain.ChatMessage{
		ID: "m-1", UserID: "u", Role: "user", Content: "msg", Timestamp: time.Unix(1700000000, 0).UTC(),
	})
	item.ID = "s-1"
	if err := m.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := m.Discard("s-1"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	pending, _ := m.PendingCount()
	if pending != 0 {
		t.Fatalf("expected empty queue after discard, got %d", pending)
	}
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(deliverer.deliveredIDs()) != 0 {
		t.Fatalf("discarded item must not be delivered")
	}
}

func TestCloseStopsBackgroundDrains(t *testing.T) {
	monitor := &stubMonitor{}
	deliverer := newFakeDeliverer()
	m, _ := newTestManager(t, monitor, deliverer)

	if err := m.Enqueue(context.Background(), domain.NewQuizAttemptItem(sampleAttempt("a-1"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	m.Close()

	// The reconnect drain now runs under a cancelled lifetime: nothing is
	// delivered, and the queued item survives for the next session.
	monitor.goOnline()
	if got := deliverer.deliveredIDs(); len(got) != 0 {
		t.Fatalf("closed manager must not deliver, got %v", got)
	}
	pending, err := m.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("queued item should survive close, got %d pending", pending)
	}

	// An explicit drain with a live context still works after Close.
	if err := m.Drain(context.Background()); err != nil {
		t.Fatalf("explicit drain failed: %v", err)
	}
	pending, _ = m.PendingCount()
	if pending != 0 {
		t.Fatalf("explicit drain should still deliver, got %d pending", pending)
	}
}

type flakyPinger struct {
	mu  sync.Mutex
	err error
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestMonitorFiresOnOfflineToOnlineTransition(t *testing.T) {
	pinger := &flakyPinger{err: errors.New("down")}
	m := NewMonitor(pinger, time.Minute)

	fired := 0
	m.OnOnline(func() { fired++ })

	m.setOnline(false)
	if fired != 0 {
		t.Fatalf("offline must not fire callbacks")
	}
	m.setOnline(true)
	if fired != 1 {
		t.Fatalf("expected one callback on transition, got %d", fired)
	}
	m.setOnline(true)
	if fired != 1 {
		t.Fatalf("staying online must not re-fire, got %d", fired)
	}
	m.setOnline(false)
	m.setOnline(true)
	if fired != 2 {
		t.Fatalf("expected second transition to fire, got %d", fired)
	}
	if !m.Online() {
		t.Fatalf("monitor should report online")
	}
}
