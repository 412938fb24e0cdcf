package client

import (
	"testing"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/stretchr/testify/assert"
)

func TestConvertTool_DerivesCategoryFromNamespacePrefix(t *testing.T) {
	t.Parallel()

	tool := convertTool(sdkmcp.Tool{
		Name:        "fs.readFile",
		Description: "reads a file",
	}, "server-1", "filesystem")

	assert.Equal(t, "fs.readFile", tool.Name)
	assert.Equal(t, "fs", tool.Category)
	assert.Equal(t, []string{"fs"}, tool.Tags)
	assert.Equal(t, "server-1", tool.ServerID)
	assert.Equal(t, "filesystem", tool.ServerName)
}

func TestConvertTool_BareNameGetsNoCategory(t *testing.T) {
	t.Parallel()

	tool := convertTool(sdkmcp.Tool{Name: "search"}, "server-1", "search-server")
	assert.Empty(t, tool.Category)
	assert.Empty(t, tool.Tags)
}
