// Package embedded defines the collaborator contract for a built-in,
// in-process MCP-style server (spec.md §6 "Inprocess server"): one that the
// Supervisor can short-circuit to without ever constructing a Transport.
package embedded

import "context"

// Server is implemented by a built-in tool provider. pkg/mcp/embedded/fileops
// is the one shipped implementation; an embedding application may register
// others the same way via Adapter + supervisor.RegisterInprocess.
type Server interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Tool mirrors the subset of mcp.Tool an embedded server needs to describe,
// kept separate so this package has no import-cycle risk on pkg/mcp.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}
