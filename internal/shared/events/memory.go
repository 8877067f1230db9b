package events

import (
	"context"
	"sync"
)

// MemoryBus keeps published events in memory. It backs tests and
// deployments that run without KurrentDB.
type MemoryBus struct {
	mu     sync.RWMutex
	events []Event
	failOn error
}

// NewMemoryBus creates an empty in-memory bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish records the event
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn != nil {
		return b.failOn
	}
	b.events = append(b.events, event)
	return nil
}

// SetFailOnPublish makes subsequent publishes return err (nil to reset)
func (b *MemoryBus) SetFailOnPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn = err
}

// Events returns a copy of published events, optionally filtered by type
func (b *MemoryBus) Events(eventType string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (b *MemoryBus) Close() {}

func (b *MemoryBus) Health() error { return nil }
