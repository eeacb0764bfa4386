// Package bus fans turn events out to observers. The turn engine
// publishes every event here in addition to the requesting stream, so
// side channels (the websocket mirror, tooling) can watch a thread,
// including events that land after the requesting stream closed, like
// post-turn promotion snapshots.
package bus

import (
	"sync"

	"github.com/pearlgull/pearlgull/internal/schema"
)

const subscriberBuffer = 64

// Subscription is one observer of a thread's events. Close it when
// done; C is closed afterwards.
type Subscription struct {
	C chan schema.TurnEvent

	bus      *Bus
	threadID string
	id       int
	once     sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.drop(s.threadID, s.id)
		close(s.C)
	})
}

// Bus is an in-process fan-out of turn events keyed by thread.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*Subscription
}

func New() *Bus {
	return &Bus{subs: map[string]map[int]*Subscription{}}
}

// Subscribe registers an observer for one thread's events.
func (b *Bus) Subscribe(threadID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		C:        make(chan schema.TurnEvent, subscriberBuffer),
		bus:      b,
		threadID: threadID,
		id:       b.nextID,
	}
	if b.subs[threadID] == nil {
		b.subs[threadID] = map[int]*Subscription{}
	}
	b.subs[threadID][sub.id] = sub
	return sub
}

// Publish delivers an event to every subscriber of the thread. Slow
// subscribers whose buffer is full lose the event rather than blocking
// the turn.
func (b *Bus) Publish(threadID string, ev schema.TurnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[threadID] {
		select {
		case sub.C <- ev:
		default:
		}
	}
}

func (b *Bus) drop(threadID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m := b.subs[threadID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, threadID)
		}
	}
}
