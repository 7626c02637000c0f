package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/msgsync/internal/target"
)

// Bus is an in-process publish/subscribe event bus with namespace and
// target filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	target    target.Target // zero matches every target
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish wraps p in an event for t and delivers it.
func (b *Bus) Publish(t target.Target, p Payload) {
	b.PublishEvent(Event{
		Kind:      p.Kind(),
		Target:    t,
		Timestamp: time.Now(),
		Payload:   p,
	})
}

// PublishEvent sends an event to all subscribers whose namespace is a prefix
// of evt.Kind and whose target filter matches.
func (b *Bus) PublishEvent(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if !sub.target.IsZero() && sub.target != evt.Target {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.SubscribeTarget(target.Target{}, namespace, bufSize)
}

// SubscribeTarget is Subscribe restricted to events about t.
func (b *Bus) SubscribeTarget(t target.Target, namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, target: t, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
