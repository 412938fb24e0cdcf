package transport

import (
	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
)

func logErrorBridge(serverID string, err error) {
	if err == nil {
		return
	}
	logger.Errorf("transport %s: %v", serverID, err)
}

func logStatusBridge(serverID string, status mcp.Status) {
	logger.Debugf("transport %s: status -> %s", serverID, status)
}
