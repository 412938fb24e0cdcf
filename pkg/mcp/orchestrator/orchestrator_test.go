package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/cache"
	"github.com/deechat/mcp-core/pkg/mcp/events"
	"github.com/deechat/mcp-core/pkg/mcp/mcptest"
	"github.com/deechat/mcp-core/pkg/mcp/registry"
	"github.com/deechat/mcp-core/pkg/mcp/supervisor"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry, *supervisor.Supervisor, *cache.Cache, *events.Bus) {
	t.Helper()
	bus := events.New()
	reg := registry.New(t.TempDir(), bus)
	require.NoError(t, reg.Load())
	factory := transport.NewFactory()
	sup := supervisor.New(factory, bus)
	c := cache.New()
	t.Cleanup(c.Destroy)
	o := New(reg, sup, c, bus, factory)
	o.SetSettleDelay(time.Millisecond)
	return o, reg, sup, c, bus
}

func inMemoryConfig(name, channel string) *mcp.ServerConfig {
	cfg := mcptest.NewServerConfig("", name, channel)
	cfg.Retry = mcp.RetryPolicy{MaxRetries: 2, InitialDelayMs: 1, MaxDelayMs: 5, BackoffFactor: 2}
	return cfg
}

func TestOrchestrator_AddServerConnectsEnabledInMemoryServer(t *testing.T) {
	t.Parallel()
	o, _, sup, c, _ := newTestOrchestrator(t)
	ctx := context.Background()

	added, err := o.AddServer(ctx, inMemoryConfig("echo", "chan-1"))
	require.NoError(t, err)

	assert.Equal(t, mcp.StatusConnected, sup.Status(added.ID))
	tools, ok := c.GetTools(added.ID)
	require.True(t, ok)
	assert.NotEmpty(t, tools)
}

func TestOrchestrator_GetAllToolsCachesAcrossCalls(t *testing.T) {
	t.Parallel()
	o, _, _, c, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.AddServer(ctx, inMemoryConfig("echo", "chan-2"))
	require.NoError(t, err)

	c.ClearAll()
	tools, err := o.GetAllTools(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tools)

	cached := c.GetAllTools()
	assert.Equal(t, len(tools), len(cached))
}

func TestOrchestrator_CallToolCachesSuccessfulResult(t *testing.T) {
	t.Parallel()
	o, _, _, c, _ := newTestOrchestrator(t)
	ctx := context.Background()

	added, err := o.AddServer(ctx, inMemoryConfig("echo", "chan-3"))
	require.NoError(t, err)

	req := mcp.ToolCallRequest{ServerID: added.ID, ToolName: "test-tool", Arguments: map[string]any{"input": "hi"}}
	resp := o.CallTool(ctx, req)
	require.True(t, resp.Success)

	_, ok := c.GetCall(req)
	assert.True(t, ok)
}

func TestOrchestrator_CallToolNeverReturnsBareError(t *testing.T) {
	t.Parallel()
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	resp := o.CallTool(ctx, mcp.ToolCallRequest{ServerID: "does-not-exist", ToolName: "whatever"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestOrchestrator_UpdateServerDisablingClosesConnectionAndInvalidatesCache(t *testing.T) {
	t.Parallel()
	o, _, sup, c, _ := newTestOrchestrator(t)
	ctx := context.Background()

	added, err := o.AddServer(ctx, inMemoryConfig("echo", "chan-4"))
	require.NoError(t, err)
	require.Equal(t, mcp.StatusConnected, sup.Status(added.ID))

	updated, err := o.UpdateServer(ctx, added.ID, func(cfg *mcp.ServerConfig) { cfg.IsEnabled = false })
	require.NoError(t, err)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, mcp.StatusDisconnected, sup.Status(added.ID))

	_, ok := c.GetTools(added.ID)
	assert.False(t, ok)
}

func TestOrchestrator_RemoveServerInvalidatesCacheAndDeletesConfig(t *testing.T) {
	t.Parallel()
	o, reg, _, c, _ := newTestOrchestrator(t)
	ctx := context.Background()

	added, err := o.AddServer(ctx, inMemoryConfig("echo", "chan-5"))
	require.NoError(t, err)

	require.NoError(t, o.RemoveServer(ctx, added.ID))

	_, err = reg.Get(added.ID)
	assert.Error(t, err)
	_, ok := c.GetTools(added.ID)
	assert.False(t, ok)
}

func TestOrchestrator_TestConnectionReturnsTrueForReachableServer(t *testing.T) {
	t.Parallel()
	o, reg, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	cfg := inMemoryConfig("echo", "chan-6")
	added, err := reg.Add(cfg)
	require.NoError(t, err)

	assert.True(t, o.TestConnection(ctx, added.ID))
}

func TestOrchestrator_TestConnectionReturnsFalseForUnknownServer(t *testing.T) {
	t.Parallel()
	o, _, _, _, _ := newTestOrchestrator(t)
	assert.False(t, o.TestConnection(context.Background(), "unknown-id"))
}

func TestOrchestrator_InprocessServerShortCircuitsSupervisor(t *testing.T) {
	t.Parallel()
	o, reg, sup, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	fake := &mcptest.InprocessServer{Tools: []mcp.Tool{{Name: "fileops.read", ServerID: "fs-1"}}}
	sup.RegisterInprocess("fs-1", fake)

	cfg := &mcp.ServerConfig{
		ID: "fs-1", Name: "fileops", Collection: mcp.CollectionSystem, Type: mcp.TransportInMemory,
		Channel: "fs-chan", IsEnabled: true, Retry: mcp.DefaultRetryPolicy(),
	}
	_, err := reg.Add(cfg)
	require.NoError(t, err)

	require.NoError(t, o.ConnectWithRetry(ctx, cfg))

	resp := o.CallTool(ctx, mcp.ToolCallRequest{ServerID: "fs-1", ToolName: "fileops.read"})
	assert.True(t, resp.Success)
	assert.Equal(t, 1, fake.CallCount())
}

func TestOrchestrator_InitializeConnectsEveryEnabledServerOnce(t *testing.T) {
	t.Parallel()
	o, reg, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := reg.Add(inMemoryConfig("one", "chan-a"))
	require.NoError(t, err)
	_, err = reg.Add(inMemoryConfig("two", "chan-b"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = o.Initialize(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	all, err := o.GetAllTools(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}

func TestConnectWithRetry_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	o, _, _, _, _ := newTestOrchestrator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	cfg := inMemoryConfig("slow", "chan-timeout")
	err := o.ConnectWithRetry(ctx, cfg)
	assert.Error(t, err)
}
