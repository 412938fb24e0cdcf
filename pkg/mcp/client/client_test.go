package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

func TestClient_ConnectListCallRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := transport.NewInMemory("client-roundtrip", true, nil)
	c := New("s1", "test-server", tr)

	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "test-tool", tools[0].Name)
	assert.Equal(t, "s1", tools[0].ServerID)
	assert.Equal(t, "test-server", tools[0].ServerName)

	resp := c.CallTool(ctx, mcp.ToolCallRequest{
		ServerID: "s1",
		ToolName: "test-tool",
		Arguments: map[string]any{"input": "hi"},
		CallID:   "call-1",
	})
	assert.True(t, resp.Success)
	assert.Equal(t, "call-1", resp.CallID)

	require.NoError(t, c.Ping(ctx))
}

func TestClient_CallToolNeverReturnsBareError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := transport.NewInMemory("client-error-path", true, nil)
	c := New("s1", "test-server", tr)
	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	resp := c.CallTool(ctx, mcp.ToolCallRequest{ServerID: "s1", ToolName: "does-not-exist"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
