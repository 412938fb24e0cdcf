package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInMemory_SelfHandleEchoScenario exercises the literal happy-path
// scenario from spec.md §8: connect, list tools, call "test-tool", observe
// "Processed: hi".
func TestInMemory_SelfHandleEchoScenario(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := NewInMemory("spec-scenario-1", true, nil)
	require.NoError(t, tr.Connect(ctx))
	defer tr.Destroy()

	listResult, err := tr.Request(ctx, "tools/list", nil)
	require.NoError(t, err)
	m, ok := listResult.(map[string]any)
	require.True(t, ok)
	tools, ok := m["tools"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "test-tool", tools[0]["name"])

	callResult, err := tr.Request(ctx, "tools/call", map[string]any{
		"name":      "test-tool",
		"arguments": map[string]any{"input": "hi"},
	})
	require.NoError(t, err)
	cm, ok := callResult.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Processed: hi", cm["toolResult"])
}

func TestInMemory_TwoPeersDeliverAcrossChannel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "pairwise-channel"
	server := NewInMemory(channel, true, nil)
	client := NewInMemory(channel, false, nil)

	require.NoError(t, server.Connect(ctx))
	defer server.Destroy()
	require.NoError(t, client.Connect(ctx))
	defer client.Destroy()

	result, err := client.Request(ctx, "ping", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestInMemory_SendBeforeConnectFails(t *testing.T) {
	t.Parallel()
	tr := NewInMemory("never-connected", false, nil)
	err := tr.Send(context.Background(), nil)
	require.Error(t, err)
}

func TestInMemory_DisconnectCancelsPendingRequests(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewInMemory("disconnect-channel", false, nil)
	require.NoError(t, tr.Connect(ctx))

	id, wait := tr.pendingReqs.Register(time.Minute)
	_ = id

	require.NoError(t, tr.Disconnect(ctx))

	select {
	case res := <-wait:
		require.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("expected pending request to be canceled on disconnect")
	}
}
