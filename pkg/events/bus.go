package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistory is how many events a MemoryBus keeps.
const DefaultHistory = 1024

const subscriberBuffer = 64

// EventBus provides publish/subscribe for assistant events.
type EventBus interface {
	Publish(event Event)
	Subscribe(filter ...EventType) <-chan Event
	Unsubscribe(ch <-chan Event)
	History(since time.Time) []Event
}

// accepts reports whether a subscription with filter wants typ. An empty
// filter wants everything.
func accepts(filter map[EventType]struct{}, typ EventType) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[typ]
	return ok
}

// MemoryBus is an in-memory EventBus. History is a ring of the most recent
// events; delivery never blocks the publisher and events for a full
// subscriber are dropped and counted.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[<-chan Event]chan Event
	filters map[<-chan Event]map[EventType]struct{}

	ring  []Event
	next  int
	full  bool
	drops atomic.Int64
}

// NewMemoryBus creates a bus keeping the last DefaultHistory events.
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithLimit(DefaultHistory)
}

// NewMemoryBusWithLimit creates a bus keeping at most limit events.
func NewMemoryBusWithLimit(limit int) *MemoryBus {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &MemoryBus{
		subs:    make(map[<-chan Event]chan Event),
		filters: make(map[<-chan Event]map[EventType]struct{}),
		ring:    make([]Event, limit),
	}
}

// Publish records event and offers it to every matching subscriber.
func (b *MemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.ring[b.next] = event
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-delivery.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key, ch := range b.subs {
		if !accepts(b.filters[key], event.Type) {
			continue
		}
		select {
		case ch <- event:
		default:
			b.drops.Add(1)
		}
	}
}

// Subscribe returns a buffered channel receiving events of the given types,
// or all events when no type is given.
func (b *MemoryBus) Subscribe(filter ...EventType) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	var set map[EventType]struct{}
	if len(filter) > 0 {
		set = make(map[EventType]struct{}, len(filter))
		for _, f := range filter {
			set[f] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[ch] = ch
	b.filters[ch] = set
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *MemoryBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	delete(b.filters, ch)
	close(c)
}

// History returns retained events at or after since, oldest first.
func (b *MemoryBus) History(since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start, n := 0, b.next
	if b.full {
		start, n = b.next, len(b.ring)
	}
	var out []Event
	for i := 0; i < n; i++ {
		e := b.ring[(start+i)%len(b.ring)]
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *MemoryBus) Dropped() int64 { return b.drops.Load() }
