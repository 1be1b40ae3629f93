package journal

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus is the in-process fan-out for committed journal events. Services
// announce events here after their transaction commits; the SSE stream and
// other consumers subscribe. Slow subscribers drop events rather than block
// the announcing operation.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	log    zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a consumer. The returned channel is buffered; callers
// must Unsubscribe when done.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan Event, 64)
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans an event out to all subscribers. Non-blocking: a full
// subscriber buffer drops the event for that subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Warn().Int("subscriber", id).Str("event_type", string(evt.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
