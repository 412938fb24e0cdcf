// Package events implements the typed publish/subscribe EventBus described in
// spec.md §4.8: synchronous fan-out, listener failures caught and logged,
// per-serverId ordering preserved within one publishing component.
package events

import (
	"sync"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
)

// Listener receives every Event published on the Bus.
type Listener func(mcp.Event)

// Unsubscribe removes a previously registered Listener.
type Unsubscribe func()

// Bus is a process-scoped fan-out of lifecycle events to subscribers.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[int]Listener)}
}

// Subscribe registers listener and returns a handle to remove it again.
func (b *Bus) Subscribe(listener Listener) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish dispatches ev to every current subscriber synchronously. A panicking
// or erroring listener is recovered and logged; it never prevents delivery to
// the remaining subscribers.
func (b *Bus) Publish(ev mcp.Event) {
	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		dispatch(l, ev)
	}
}

func dispatch(l Listener, ev mcp.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event listener panicked handling %s: %v", ev.Type, r)
		}
	}()
	l(ev)
}
