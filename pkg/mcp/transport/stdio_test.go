package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// TestStdio_CatEchoesRequestAsResponse spawns the "cat" coreutil as a stand-in
// MCP server: it echoes every line it receives back out unchanged, so a
// request sent with a given id comes back framed as its own "response" (no
// method/ usable JSON-RPC semantics, but enough to exercise spawn, framing,
// correlation and teardown end to end without a real MCP binary on PATH).
func TestStdio_CatEchoesRequestAsResponse(t *testing.T) {
	t.Parallel()

	tr, err := buildStdio(&mcp.ServerConfig{ID: "cat-echo", Command: "cat"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, tr.Connect(ctx))
	defer tr.Destroy()

	id, wait := tr.(*Stdio).pendingReqs.Register(5 * time.Second)
	msg := &mcp.RPCMessage{JSONRPC: "2.0", ID: id, Result: "ping"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_ = data

	require.NoError(t, tr.Send(ctx, msg))

	res := <-wait
	require.NoError(t, res.Err)
	require.Equal(t, "ping", res.Value)
}

func TestStdio_ConnectFailsForMissingCommand(t *testing.T) {
	t.Parallel()

	tr, err := buildStdio(&mcp.ServerConfig{ID: "missing", Command: "this-binary-does-not-exist-anywhere"})
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
}
