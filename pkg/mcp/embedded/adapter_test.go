package embedded

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
)

type fakeServer struct {
	tools   []Tool
	results map[string]any
	fail    map[string]error
}

func (f *fakeServer) ListTools(context.Context) ([]Tool, error) { return f.tools, nil }

func (f *fakeServer) CallTool(_ context.Context, name string, _ map[string]any) (any, error) {
	if err, ok := f.fail[name]; ok {
		return nil, err
	}
	return f.results[name], nil
}

func TestAdapter_ListToolsStampsServerIdentity(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{tools: []Tool{{Name: "fileops.read"}}}
	a := NewAdapter(fake, "srv-1", "File Ops")

	tools, err := a.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "srv-1", tools[0].ServerID)
	assert.Equal(t, "File Ops", tools[0].ServerName)
}

func TestAdapter_CallToolTranslatesSuccess(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{results: map[string]any{"fileops.read": "contents"}}
	a := NewAdapter(fake, "srv-1", "File Ops")

	resp := a.CallTool(context.Background(), mcp.ToolCallRequest{ToolName: "fileops.read", CallID: "call-1"})
	assert.True(t, resp.Success)
	assert.Equal(t, "contents", resp.Result)
	assert.Equal(t, "call-1", resp.CallID)
}

func TestAdapter_CallToolTranslatesFailure(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{fail: map[string]error{"fileops.read": errors.New("boom")}}
	a := NewAdapter(fake, "srv-1", "File Ops")

	resp := a.CallTool(context.Background(), mcp.ToolCallRequest{ToolName: "fileops.read"})
	assert.False(t, resp.Success)
	assert.Equal(t, "boom", resp.Error)
}
