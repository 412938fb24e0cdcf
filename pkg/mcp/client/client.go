// Package client implements the single MCP protocol handshake (initialize,
// tools/list, tools/call, ping) on top of any transport.Transport, the way
// the teacher's cmd/thv/app/mcp.go drives mark3labs/mcp-go's own client.Client
// -- except here the wire variant is one of our five Transport
// implementations instead of the SDK's built-in stdio/SSE pair, since spec.md
// §4.1 requires an in-memory loopback the SDK does not provide.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

// clientName/clientVersion identify this runtime to servers during
// initialize, mirroring the teacher's "toolhive-cli" Implementation.
const (
	clientName    = "deechat-mcp-core"
	clientVersion = "0.1.0"
)

// Client drives the MCP handshake and the three operations the Orchestrator
// needs (spec.md §4.3 "Client") over one already-constructed Transport.
type Client struct {
	serverID   string
	serverName string
	tr         transport.Transport
}

// New wraps tr for server serverID/serverName. tr is expected to already be
// built (but not yet connected) by transport.Factory.
func New(serverID, serverName string, tr transport.Transport) *Client {
	return &Client{serverID: serverID, serverName: serverName, tr: tr}
}

// Connect opens the underlying transport and performs the MCP initialize
// handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.tr.Connect(ctx); err != nil {
		return err
	}
	if err := c.initialize(ctx); err != nil {
		_ = c.tr.Disconnect(ctx)
		return err
	}
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	req := sdkmcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.ProtocolVersion
	req.Params.Capabilities = sdkmcp.ClientCapabilities{}
	req.Params.ClientInfo = sdkmcp.Implementation{Name: clientName, Version: clientVersion}

	var result sdkmcp.InitializeResult
	if err := c.call(ctx, "initialize", req.Params, &result); err != nil {
		return mcperrors.WithServer(mcperrors.KindProtocolError, c.serverID, 0, err)
	}

	if err := c.tr.Notify(ctx, "notifications/initialized", nil); err != nil {
		return mcperrors.WithServer(mcperrors.KindProtocolError, c.serverID, 0, err)
	}
	return nil
}

// ListTools fetches the server's tool catalog and converts it into the
// shared mcp.Tool shape, tagging each with ServerID/ServerName/Category so
// downstream caching/search (spec.md §4.4, §4.6) has what it needs.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var result sdkmcp.ListToolsResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, mcperrors.WithServer(mcperrors.KindProtocolError, c.serverID, 0, err)
	}

	tools := make([]mcp.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, convertTool(t, c.serverID, c.serverName))
	}
	return tools, nil
}

// CallTool invokes one tool and returns a ToolCallResponse that is always
// populated (success or failure), never a bare error, per spec.md §4.3.
func (c *Client) CallTool(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse {
	start := time.Now()

	params := sdkmcp.CallToolParams{Name: req.ToolName, Arguments: req.Arguments}
	var result sdkmcp.CallToolResult
	err := c.call(ctx, "tools/call", params, &result)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return mcp.ToolCallResponse{
			Success:    false,
			Error:      err.Error(),
			CallID:     req.CallID,
			DurationMs: duration,
		}
	}
	if result.IsError {
		return mcp.ToolCallResponse{
			Success:    false,
			Error:      extractText(result),
			CallID:     req.CallID,
			DurationMs: duration,
		}
	}
	return mcp.ToolCallResponse{
		Success:    true,
		Result:     result.Content,
		CallID:     req.CallID,
		DurationMs: duration,
	}
}

// Ping is a lightweight liveness probe, used by the Supervisor's health-check
// watchdog (spec.md §4.3).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.tr.Request(ctx, "ping", nil)
	return err
}

func (c *Client) Close(ctx context.Context) error {
	return c.tr.Disconnect(ctx)
}

// Status reports the underlying transport's current connection status.
func (c *Client) Status() mcp.Status { return c.tr.Status() }

// call issues a Request and decodes its result into out via a JSON roundtrip,
// since Transport.Request returns the loosely-typed value the wire codec
// produced rather than a concrete SDK struct.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := c.tr.Request(ctx, method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("client: re-marshal %s result: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode %s result: %w", method, err)
	}
	return nil
}

func extractText(result sdkmcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool call failed"
}
