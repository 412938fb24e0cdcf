package embedded

import (
	"context"
	"time"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// Adapter wraps a Server so it satisfies the shape supervisor.InprocessServer
// expects (mcp.Tool catalogs, mcp.ToolCallRequest/Response instead of this
// package's narrower Server contract), so RegisterInprocess never needs to
// know about embedded.Server at all.
type Adapter struct {
	inner      Server
	serverID   string
	serverName string
}

// NewAdapter wraps s, stamping every returned Tool with serverID/serverName
// the way pkg/mcp/client/convert.go does for tools discovered over a real
// transport.
func NewAdapter(s Server, serverID, serverName string) *Adapter {
	return &Adapter{inner: s, serverID: serverID, serverName: serverName}
}

// ListTools satisfies supervisor.InprocessServer.
func (a *Adapter) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tools, err := a.inner.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		out[i] = mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerID:    a.serverID,
			ServerName:  a.serverName,
		}
	}
	return out, nil
}

// CallTool satisfies supervisor.InprocessServer, translating a
// mcp.ToolCallRequest/Response through the wrapped Server's narrower
// CallTool(name, args) (any, error) contract.
func (a *Adapter) CallTool(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse {
	start := time.Now()
	result, err := a.inner.CallTool(ctx, req.ToolName, req.Arguments)
	resp := mcp.ToolCallResponse{CallID: req.CallID, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}
