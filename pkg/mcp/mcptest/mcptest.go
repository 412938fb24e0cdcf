// Package mcptest collects small fakes shared by this module's package
// tests, grounded on the teacher's pkg/vmcp/*/testhelpers_test.go convention
// of a handful of conversion/fixture helpers living alongside (or, here,
// beside) the tests that use them rather than a generic mocking framework.
package mcptest

import (
	"context"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// InprocessServer is a minimal fake satisfying supervisor.InprocessServer
// without importing pkg/mcp/supervisor (avoids a test-only import cycle risk
// and keeps this package dependency-light).
type InprocessServer struct {
	mu    sync.Mutex
	Tools []mcp.Tool
	// Calls records every request CallTool received, in order.
	Calls []mcp.ToolCallRequest
	// Responder, if set, computes the response for a call; otherwise a
	// canned success response echoing the request's arguments is returned.
	Responder func(mcp.ToolCallRequest) mcp.ToolCallResponse
}

func (s *InprocessServer) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.Tools, nil
}

func (s *InprocessServer) CallTool(_ context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse {
	s.mu.Lock()
	s.Calls = append(s.Calls, req)
	s.mu.Unlock()

	if s.Responder != nil {
		return s.Responder(req)
	}
	return mcp.ToolCallResponse{Success: true, Result: req.Arguments, CallID: req.CallID}
}

// CallCount reports how many times CallTool has been invoked so far.
func (s *InprocessServer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// NewServerConfig builds a minimal valid InMemory ServerConfig for tests that
// don't care about the rest of the field set.
func NewServerConfig(id, name, channel string) *mcp.ServerConfig {
	now := time.Now()
	return &mcp.ServerConfig{
		ID:         id,
		Name:       name,
		Collection: mcp.CollectionUser,
		Type:       mcp.TransportInMemory,
		Channel:    channel,
		SelfHandle: true,
		IsEnabled:  true,
		Retry:      mcp.DefaultRetryPolicy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
