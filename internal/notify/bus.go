// Package notify provides a small in-process fan-out bus used to push
// session and turn change events to connected clients, replacing list
// polling on the frontend.
package notify

import (
	"log/slog"
	"sync"
)

// EventType identifies what changed.
type EventType string

const (
	SessionCreated EventType = "session_created"
	SessionUpdated EventType = "session_updated"
	SessionDeleted EventType = "session_deleted"
	TurnDeleted    EventType = "turn_deleted"
)

// Event describes a single persistence change.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id,omitempty"`
}

// Bus fans events out to all current subscribers. Publishing never blocks:
// a subscriber that cannot keep up has events dropped, not queued forever.
type Bus struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[int64]chan Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int64]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			slog.Debug("notify: dropping event for slow subscriber", "type", evt.Type, "session_id", evt.SessionID)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
