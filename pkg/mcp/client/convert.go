package client

import (
	"strings"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// convertTool maps an SDK tool descriptor onto the shared mcp.Tool shape,
// deriving Category/Tags from a "namespace.toolName" convention some servers
// use (e.g. "fs.readFile" -> category "fs") -- a bare name gets no category.
func convertTool(t sdkmcp.Tool, serverID, serverName string) mcp.Tool {
	schema := schemaToMap(t.InputSchema)

	tool := mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
		ServerID:    serverID,
		ServerName:  serverName,
	}

	if idx := strings.IndexByte(t.Name, '.'); idx > 0 {
		tool.Category = t.Name[:idx]
		tool.Tags = []string{tool.Category}
	}

	return tool
}

// schemaToMap normalizes the SDK's typed ToolInputSchema into the plain
// map[string]any the rest of this runtime stores and hashes (spec.md §4.6's
// canonical-JSON keying operates on plain maps, not SDK structs).
func schemaToMap(schema sdkmcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}
