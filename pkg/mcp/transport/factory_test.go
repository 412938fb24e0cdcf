package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
)

func TestFactory_CreateRejectsEmptyID(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	_, err := f.Create(&mcp.ServerConfig{Type: mcp.TransportInMemory, Channel: "c1"})
	require.Error(t, err)
}

func TestFactory_CreateRejectsUnsupportedTransport(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	_, err := f.Create(&mcp.ServerConfig{ID: "s1", Type: "carrier-pigeon"})
	require.Error(t, err)
}

func TestFactory_CreateRejectsStdioWithoutCommand(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	_, err := f.Create(&mcp.ServerConfig{ID: "s1", Type: mcp.TransportStdio})
	require.Error(t, err)
}

func TestFactory_CreateRejectsNetworkWithBadURL(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	_, err := f.Create(&mcp.ServerConfig{ID: "s1", Type: mcp.TransportWebSocket, URL: "not-a-url"})
	require.Error(t, err)
}

func TestFactory_CreateInMemorySucceeds(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	tr, err := f.Create(&mcp.ServerConfig{ID: "s1", Type: mcp.TransportInMemory, Channel: "c1"})
	require.NoError(t, err)
	assert.Equal(t, mcp.StatusDisconnected, tr.Status())
}

func TestDetectProtocolType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want mcp.TransportType
	}{
		{"ws://localhost:8080/rpc", mcp.TransportWebSocket},
		{"wss://example.com/rpc", mcp.TransportWebSocket},
		{"http://example.com/sse", mcp.TransportSSE},
		{"http://example.com/events", mcp.TransportSSE},
		{"https://example.com/mcp", mcp.TransportStreamableHTTP},
		{"ftp://example.com/mcp", ""},
		{"not a url at all", ""},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, DetectProtocolType(c.url), c.url)
	}
}
