// Package events provides the one-to-many notification channel between the
// offline core and the UI layer. It is a plain listener list: subscribers
// get every published event, synchronously, and must not block.
package events

import "sync"

// Type identifies what happened.
type Type string

const (
	QueueUpdated      Type = "queue-updated"
	QueueStarted      Type = "queue-started"
	QueueCompleted    Type = "queue-completed"
	QueueCleared      Type = "queue-cleared"
	DownloadStarted   Type = "download-started"
	DownloadProgress  Type = "download-progress"
	DownloadCompleted Type = "download-completed"
	DownloadFailed    Type = "download-failed"
	DownloadPaused    Type = "download-paused"
	DownloadRetry     Type = "download-retry"
	ContentDeleted    Type = "content-deleted"
	SyncDrained       Type = "sync-drained"
)

// Event is one notification. ID names the record or content item the event
// concerns, when there is one; Payload is event-type specific.
type Event struct {
	Type    Type
	ID      string
	Payload any
}

// Bus fans events out to registered listeners.
type Bus struct {
	mu        sync.RWMutex
	nextToken int
	listeners map[int]func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]func(Event))}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	token := b.nextToken
	b.nextToken++
	b.listeners[token] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, token)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current listener.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
