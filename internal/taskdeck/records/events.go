package records

import "sync"

// ChangeType distinguishes row upserts from removals.
type ChangeType string

const (
	ChangeSet    ChangeType = "set"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent describes one committed mutation. Value is the row after
// the change (nil on delete); Prev is the row before it (nil on insert).
type ChangeEvent struct {
	Type  ChangeType
	Table string
	ID    string
	Value Record
	Prev  Record
}

// subscriberBuffer bounds how far a slow subscriber may lag before
// events are dropped for it. Publishers never block.
const subscriberBuffer = 64

// EventBus fans mutation events out to any number of subscribers.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ChangeEvent
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe registers a new listener. The returned func removes the
// subscription and closes the channel; it is safe to call twice.
func (b *EventBus) Subscribe() (<-chan ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ChangeEvent, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber. Delivery happens on
// the mutating goroutine; a subscriber whose buffer is full misses the
// event rather than stalling writes.
func (b *EventBus) Publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports how many listeners are attached.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
