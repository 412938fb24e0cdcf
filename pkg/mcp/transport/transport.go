// Package transport implements the five wire mechanisms behind the single
// request/response/notification contract described in spec.md §4.1: stdio,
// websocket, streamable HTTP, legacy SSE, and an in-memory loopback.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// EventKind enumerates the events a Transport publishes to subscribers.
type EventKind string

const (
	EventConnect       EventKind = "connect"
	EventDisconnect    EventKind = "disconnect"
	EventError         EventKind = "error"
	EventMessage       EventKind = "message"
	EventStatusChange  EventKind = "statusChange"
)

// TransportEvent is delivered to subscribers registered via Transport.On.
type TransportEvent struct {
	Kind    EventKind
	Status  mcp.Status
	Message *mcp.RPCMessage
	Err     error
}

// Handler receives TransportEvents. Returning nothing mirrors spec.md's fire-
// and-forget event subscription; a handler that needs to unsubscribe closes
// over the Unsubscribe func returned by On.
type Handler func(TransportEvent)

// Unsubscribe removes a previously registered Handler.
type Unsubscribe func()

// Features advertises what a transport variant supports, per spec.md §4.1.
type Features struct {
	Streaming     bool
	Notifications bool
	Sessions      bool
	Reconnect     bool
}

// Transport is the contract every wire variant implements (spec.md §4.1).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Send(ctx context.Context, msg *mcp.RPCMessage) error
	Request(ctx context.Context, method string, params any) (any, error)
	Notify(ctx context.Context, method string, params any) error

	On(kind EventKind, h Handler) Unsubscribe

	SetTimeout(d time.Duration)
	SetRetryPolicy(p mcp.RetryPolicy)

	Features() Features
	Stats() mcp.Stats
	Status() mcp.Status

	Destroy()
}

// statusMachine is embedded by every variant to implement the shared status
// state machine and event fan-out (spec.md §3 TransportStatus, §4.1 "Status
// machine"): disconnected -> connecting -> connected -> disconnecting ->
// disconnected, with error reachable from any non-terminal state.
type statusMachine struct {
	mu       sync.Mutex
	status   mcp.Status
	handlers map[EventKind][]handlerEntry
	nextID   int
}

type handlerEntry struct {
	id int
	h  Handler
}

func newStatusMachine() *statusMachine {
	return &statusMachine{
		status:   mcp.StatusDisconnected,
		handlers: make(map[EventKind][]handlerEntry),
	}
}

func (s *statusMachine) Status() mcp.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *statusMachine) IsConnected() bool {
	return s.Status() == mcp.StatusConnected
}

// setStatus transitions to next and emits a statusChange event. A transport
// that is in error must pass through disconnected before reconnecting; that
// invariant is enforced by callers (Connect refuses to run unless the current
// status is disconnected), not by setStatus itself, since error is reachable
// from any non-terminal state and setStatus must not reject that transition.
func (s *statusMachine) setStatus(next mcp.Status) {
	s.mu.Lock()
	s.status = next
	s.mu.Unlock()
	s.emit(TransportEvent{Kind: EventStatusChange, Status: next})
}

func (s *statusMachine) On(kind EventKind, h Handler) Unsubscribe {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[kind] = append(s.handlers[kind], handlerEntry{id: id, h: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.handlers[kind]
		for i, e := range entries {
			if e.id == id {
				s.handlers[kind] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

func (s *statusMachine) emit(ev TransportEvent) {
	s.mu.Lock()
	entries := append([]handlerEntry(nil), s.handlers[ev.Kind]...)
	s.mu.Unlock()
	for _, e := range entries {
		e.h(ev)
	}
}

// statsTracker accumulates mcp.Stats with relaxed atomicity (spec.md §5):
// monotonic within one connection lifetime, guarded by a plain mutex since
// updates are infrequent relative to message framing overhead.
type statsTracker struct {
	mu    sync.Mutex
	stats mcp.Stats
}

func (t *statsTracker) recordSent(n int) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.MessagesSent++
	t.stats.BytesOut += int64(n)
	t.stats.LastMessageAt = &now
}

func (t *statsTracker) recordReceived(n int) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.MessagesReceived++
	t.stats.BytesIn += int64(n)
	t.stats.LastMessageAt = &now
}

func (t *statsTracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Errors++
}

func (t *statsTracker) recordConnected(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.ConnectedAt = &at
}

func (t *statsTracker) snapshot() mcp.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
