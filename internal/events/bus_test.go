package events

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBus()
	var first, second []Type
	b.Subscribe(func(e Event) { first = append(first, e.Type) })
	b.Subscribe(func(e Event) { second = append(second, e.Type) })

	b.Publish(Event{Type: DownloadStarted, ID: "c-1"})
	b.Publish(Event{Type: DownloadCompleted, ID: "c-1"})

	for _, got := range [][]Type{first, second} {
		if len(got) != 2 || got[0] != DownloadStarted || got[1] != DownloadCompleted {
			t.Fatalf("subscriber missed events: %v", got)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe(func(Event) { calls++ })

	b.Publish(Event{Type: QueueUpdated})
	unsub()
	b.Publish(Event{Type: QueueUpdated})

	if calls != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", calls)
	}
	// Unsubscribing twice is harmless.
	unsub()
}

func TestPublishWithNoSubscribers(t *testing.T) {
	NewBus().Publish(Event{Type: SyncDrained})
}
