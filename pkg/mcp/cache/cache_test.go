package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
)

func TestCache_ToolsRoundTripsUntilInvalidated(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	tools := []mcp.Tool{{Name: "tool-a", ServerID: "srv-1"}}
	c.PutTools("srv-1", tools)

	got, ok := c.GetTools("srv-1")
	require.True(t, ok)
	assert.Equal(t, tools, got)

	c.InvalidateServer("srv-1")
	_, ok = c.GetTools("srv-1")
	assert.False(t, ok)
}

func TestCache_PutToolsExtendsTTLForBuiltinServerID(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	c.PutTools(BuiltinServerIDPrefix+"fileops", []mcp.Tool{{Name: "fileops.read"}})

	c.mu.RLock()
	e := c.toolsByServer[BuiltinServerIDPrefix+"fileops"]
	c.mu.RUnlock()
	assert.WithinDuration(t, time.Now().Add(BuiltinToolsTTL), e.expiresAt, time.Minute)
}

func TestIsBuiltinServerID(t *testing.T) {
	t.Parallel()
	assert.True(t, IsBuiltinServerID("builtin:fileops"))
	assert.False(t, IsBuiltinServerID("srv-1"))
}

func TestCache_GetToolsMissingServerReturnsFalse(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	_, ok := c.GetTools("unknown")
	assert.False(t, ok)
}

func TestCache_CallResultsKeyOnCanonicalArguments(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	reqA := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo", Arguments: map[string]any{"a": 1, "b": 2}}
	reqB := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo", Arguments: map[string]any{"b": 2, "a": 1}}
	resp := mcp.ToolCallResponse{Success: true, Result: "hi"}

	c.PutCall(reqA, resp)

	got, ok := c.GetCall(reqB)
	require.True(t, ok, "differently-ordered argument keys should hash to the same cache key")
	assert.Equal(t, resp, got)
}

func TestCache_CallResultsDistinguishDifferentArguments(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	reqA := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo", Arguments: map[string]any{"a": 1}}
	reqB := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo", Arguments: map[string]any{"a": 2}}
	c.PutCall(reqA, mcp.ToolCallResponse{Success: true, Result: "one"})

	_, ok := c.GetCall(reqB)
	assert.False(t, ok)
}

func TestCache_InvalidateToolOnlyAffectsThatTool(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	reqEcho := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo", Arguments: map[string]any{}}
	reqPing := mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "ping", Arguments: map[string]any{}}
	c.PutCall(reqEcho, mcp.ToolCallResponse{Success: true})
	c.PutCall(reqPing, mcp.ToolCallResponse{Success: true})

	c.InvalidateTool("srv-1", "echo")

	_, ok := c.GetCall(reqEcho)
	assert.False(t, ok)
	_, ok = c.GetCall(reqPing)
	assert.True(t, ok)
}

func TestCache_StatusExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()
	c.statusTTL = 10 * time.Millisecond

	c.PutStatus("srv-1", mcp.StatusConnected)
	got, ok := c.GetStatus("srv-1")
	require.True(t, ok)
	assert.Equal(t, mcp.StatusConnected, got)

	time.Sleep(25 * time.Millisecond)
	_, ok = c.GetStatus("srv-1")
	assert.False(t, ok)
}

func TestCache_GetAllToolsUnionsAcrossServers(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	c.PutTools("srv-1", []mcp.Tool{{Name: "a", ServerID: "srv-1"}})
	c.PutTools("srv-2", []mcp.Tool{{Name: "b", ServerID: "srv-2"}})

	all := c.GetAllTools()
	assert.Len(t, all, 2)

	ids := c.GetAllServerIds()
	assert.ElementsMatch(t, []string{"srv-1", "srv-2"}, ids)
}

func TestCache_ClearAllEmptiesEveryMap(t *testing.T) {
	t.Parallel()
	c := New()
	defer c.Destroy()

	c.PutTools("srv-1", []mcp.Tool{{Name: "a"}})
	c.PutStatus("srv-1", mcp.StatusConnected)
	c.PutCall(mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo"}, mcp.ToolCallResponse{Success: true})

	c.ClearAll()

	_, ok := c.GetTools("srv-1")
	assert.False(t, ok)
	_, ok = c.GetStatus("srv-1")
	assert.False(t, ok)
	_, ok = c.GetCall(mcp.ToolCallRequest{ServerID: "srv-1", ToolName: "echo"})
	assert.False(t, ok)
	assert.Empty(t, c.GetAllTools())
}

func TestCache_DestroyIsIdempotent(t *testing.T) {
	t.Parallel()
	c := New()
	c.Destroy()
	assert.NotPanics(t, c.Destroy)
}
