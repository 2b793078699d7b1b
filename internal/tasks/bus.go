package tasks

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Bus fans lifecycle events out to subscribers. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	logger *log.Logger
}

// NewBus creates an empty bus. Subscriber failures are logged to logger when non-nil.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{subs: make(map[int]chan Event), logger: logger}
}

// Subscribe returns a channel receiving events and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// SubscribeFunc calls fn for every event on a dedicated goroutine. Errors and panics from fn
// are logged and do not reach the publisher or other subscribers.
func (b *Bus) SubscribeFunc(fn func(Event) error) func() {
	ch, cancel := b.Subscribe(64)
	go func() {
		for e := range ch {
			if err := b.call(fn, e); err != nil && b.logger != nil {
				b.logger.Warn("event subscriber failed", "event", e.Type, "error", err)
			}
		}
	}()
	return cancel
}

func (b *Bus) call(fn func(Event) error, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return fn(e)
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
