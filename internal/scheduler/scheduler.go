// Package scheduler runs the periodic maintenance the offline core needs:
// the retention sweep and a recurring sync-drain attempt that moves queued
// items even when no connectivity transition fires.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shikkhasathi/offline/internal/storage"
	"github.com/shikkhasathi/offline/internal/syncq"
)

// Scheduler manages the recurring background tasks.
type Scheduler struct {
	scheduler    *gocron.Scheduler
	db           *storage.DB
	syncMgr      *syncq.Manager
	retentionAge time.Duration
	sweepEvery   time.Duration
	drainEvery   time.Duration
}

// New creates a scheduler for the given store and sync manager.
func New(db *storage.DB, syncMgr *syncq.Manager, retentionAge, sweepEvery, drainEvery time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		db:           db,
		syncMgr:      syncMgr,
		retentionAge: retentionAge,
		sweepEvery:   sweepEvery,
		drainEvery:   drainEvery,
	}
}

// Start registers the jobs and begins running them asynchronously.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.sweepEvery).Do(s.sweep); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(s.drainEvery).Do(s.drain); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) sweep() {
	cutoff := time.Now().UTC().Add(-s.retentionAge)
	result, err := s.db.Sweep(cutoff)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	slog.Info("retention sweep complete",
		"lessons", result.Lessons, "attempts", result.Attempts, "messages", result.Messages)
}

func (s *Scheduler) drain() {
	pending, err := s.syncMgr.PendingCount()
	if err != nil {
		slog.Error("failed to count pending sync items", "error", err)
		return
	}
	if pending == 0 {
		return
	}
	if err := s.syncMgr.Drain(context.Background()); err != nil {
		slog.Debug("scheduled drain left items queued", "error", err)
	}
}
