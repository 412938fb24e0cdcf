package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

func TestDefaultPaths_UserDataDirUsesAppName(t *testing.T) {
	t.Parallel()
	p := DefaultPaths{AppName: "testapp"}
	dir, err := p.UserDataDir()
	require.NoError(t, err)
	assert.Contains(t, dir, "testapp")
	assert.Contains(t, dir, "mcp")
}

func TestDefaultPaths_ProjectDirReportsAbsent(t *testing.T) {
	t.Parallel()
	_, ok := DefaultPaths{}.ProjectDir()
	assert.False(t, ok)
}

func TestNoopTokenSource_AlwaysFails(t *testing.T) {
	t.Parallel()
	_, err := NoopTokenSource{}.Token(context.Background(), "srv-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcperrors.ErrAuthNotConfigured))
}

func TestOSSpawner_SpawnsAndWaitsForChild(t *testing.T) {
	t.Parallel()
	child, err := OSSpawner{}.Spawn(context.Background(), "true", nil, nil, "")
	require.NoError(t, err)
	assert.Greater(t, child.Pid(), 0)
	assert.NoError(t, child.Wait())
}
