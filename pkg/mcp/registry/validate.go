package registry

import (
	"fmt"

	"github.com/deechat/mcp-core/pkg/mcp"
)

// Validate checks the fields a ServerConfig must have regardless of which
// collection it lives in or which transport it selects (spec.md §4.4's
// "validation" step, layered beneath transport.Factory's own per-variant
// checks run later at connect time).
func Validate(cfg *mcp.ServerConfig) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if cfg.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type must not be empty")
	}
	switch cfg.Collection {
	case mcp.CollectionSystem, mcp.CollectionProject, mcp.CollectionUser:
	default:
		return fmt.Errorf("collection must be one of system/project/user, got %q", cfg.Collection)
	}
	switch cfg.Type {
	case mcp.TransportStdio, mcp.TransportWebSocket, mcp.TransportStreamableHTTP, mcp.TransportSSE, mcp.TransportInMemory:
	default:
		return fmt.Errorf("unsupported transport type %q", cfg.Type)
	}
	if cfg.Auth.Type == mcp.AuthOAuth2 && cfg.Auth.OAuth2 == nil {
		return fmt.Errorf("auth type oauth2 requires an oauth2 config")
	}
	if cfg.Auth.Type == mcp.AuthBearer && cfg.Auth.Token == "" {
		return fmt.Errorf("auth type bearer requires a token")
	}
	return nil
}
