package syncq

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is the slice of the backend client the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity is the monitor surface the sync manager consumes. Tests
// substitute a stub.
type Connectivity interface {
	Online() bool
	OnOnline(fn func())
}

// Monitor polls the backend health endpoint and tracks online/offline
// state. Registered callbacks fire on every offline-to-online transition.
type Monitor struct {
	pinger   Pinger
	interval time.Duration

	mu        sync.Mutex
	online    bool
	callbacks []func()
	cancel    context.CancelFunc
}

// NewMonitor builds a monitor that probes on the given interval. The
// monitor starts pessimistic (offline) until the first successful probe.
func NewMonitor(pinger Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{pinger: pinger, interval: interval}
}

// Online reports the current connectivity view.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a callback fired on each offline-to-online transition.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Start begins probing until Stop is called or ctx ends. The first probe
// runs immediately so startup does not wait a full interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop halts probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.pinger.Ping(probeCtx)
	cancel()
	m.setOnline(err == nil)
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var fire []func()
	if online && !wasOnline {
		fire = append(fire, m.callbacks...)
	}
	m.mu.Unlock()

	if online && !wasOnline {
		slog.Info("connectivity restored")
	} else if !online && wasOnline {
		slog.Info("connectivity lost")
	}
	for _, fn := range fire {
		fn()
	}
}
