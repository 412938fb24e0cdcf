// Package pending implements the request-correlation table shared by every
// Transport variant that multiplexes request/response traffic over one
// connection (spec.md §4.1 "Request correlation", §5 "Cancellation &
// timeouts"): a monotonically increasing id per outbound request, a map of
// id -> {resolver, timer}, and exactly-once resolution by success, timeout,
// or disconnect-cancel.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

var errRequestTimedOut = errors.New("request timed out")

// Result is what a pending request resolves to.
type Result struct {
	Value any
	Err   error
}

type entry struct {
	resolve func(Result)
	timer   *time.Timer
}

// Table owns the id->resolver map for one transport connection.
type Table struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*entry
}

// New constructs an empty Table.
func New() *Table {
	return &Table{entries: make(map[int64]*entry)}
}

// Register allocates the next id, installs a timeout timer, and returns the
// id plus a channel that receives exactly one Result. If the timer fires
// first, the entry is released and the channel receives a KindTimeout error.
func (t *Table) Register(timeout time.Duration) (id int64, wait <-chan Result) {
	ch := make(chan Result, 1)
	var once sync.Once
	resolve := func(r Result) {
		once.Do(func() { ch <- r; close(ch) })
	}

	t.mu.Lock()
	t.nextID++
	id = t.nextID
	e := &entry{resolve: resolve}
	t.entries[id] = e
	t.mu.Unlock()

	e.timer = time.AfterFunc(timeout, func() {
		t.release(id)
		resolve(Result{Err: timeoutError()})
	})

	return id, ch
}

// Resolve completes the pending entry for id exactly once with value/err. It
// is a no-op (debug-logged here) for an unknown or already-resolved id,
// matching spec.md's "duplicate or unknown ids ... dropped" rule.
func (t *Table) Resolve(id int64, value any, err error) bool {
	e := t.release(id)
	if e == nil {
		logger.Debugf("pending: dropping response for unknown or already-resolved id %d", id)
		return false
	}
	e.timer.Stop()
	e.resolve(Result{Value: value, Err: err})
	return true
}

func (t *Table) release(id int64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	return e
}

// Len reports how many requests are still outstanding, used by tests to
// assert the pending table returns to its prior size after a timeout.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CancelAll resolves every outstanding entry with err (Disconnect passes a
// "transport disconnected" error) before tearing down the underlying resource
// (spec.md §5 "Cancellation & timeouts").
func (t *Table) CancelAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int64]*entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.resolve(Result{Err: err})
	}
}

func timeoutError() error {
	return mcperrors.New(mcperrors.KindTimeout, errRequestTimedOut)
}
