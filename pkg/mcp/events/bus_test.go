package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	var mu sync.Mutex
	var gotA, gotB []mcp.Event

	b.Subscribe(func(ev mcp.Event) {
		mu.Lock()
		defer mu.Unlock()
		gotA = append(gotA, ev)
	})
	b.Subscribe(func(ev mcp.Event) {
		mu.Lock()
		defer mu.Unlock()
		gotB = append(gotB, ev)
	})

	b.Publish(mcp.Event{Type: mcp.EventServerConnected, ServerID: "s1", Timestamp: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gotA, 1)
	require.Len(t, gotB, 1)
	assert.Equal(t, mcp.EventServerConnected, gotA[0].Type)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()
	count := 0
	unsub := b.Subscribe(func(mcp.Event) { count++ })
	unsub()

	b.Publish(mcp.Event{Type: mcp.EventServerError})

	assert.Equal(t, 0, count)
}

func TestBus_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	b := New()
	delivered := false
	b.Subscribe(func(mcp.Event) { panic("boom") })
	b.Subscribe(func(mcp.Event) { delivered = true })

	assert.NotPanics(t, func() {
		b.Publish(mcp.Event{Type: mcp.EventToolCalled})
	})
	assert.True(t, delivered)
}

func TestBus_OrderingPerServerID(t *testing.T) {
	t.Parallel()

	b := New()
	var seen []mcp.EventType
	b.Subscribe(func(ev mcp.Event) { seen = append(seen, ev.Type) })

	b.Publish(mcp.Event{Type: mcp.EventServerConnected, ServerID: "s1"})
	b.Publish(mcp.Event{Type: mcp.EventToolDiscovered, ServerID: "s1"})
	b.Publish(mcp.Event{Type: mcp.EventServerDisconnected, ServerID: "s1"})

	assert.Equal(t, []mcp.EventType{
		mcp.EventServerConnected,
		mcp.EventToolDiscovered,
		mcp.EventServerDisconnected,
	}, seen)
}
