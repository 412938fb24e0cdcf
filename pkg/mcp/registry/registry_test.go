package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(t.TempDir(), nil)
	require.NoError(t, r.Load())
	return r
}

func sampleConfig(name string) *mcp.ServerConfig {
	return &mcp.ServerConfig{
		Name:       name,
		Collection: mcp.CollectionUser,
		Type:       mcp.TransportInMemory,
		Channel:    "chan-" + name,
	}
}

func TestRegistry_AddThenGetRoundTrips(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	added, err := r.Add(sampleConfig("alpha"))
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, mcp.ExecutionInprocess, added.Execution)

	got, err := r.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
}

func TestRegistry_AddRejectsDuplicateNameInSameCollection(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Add(sampleConfig("dup"))
	require.NoError(t, err)

	_, err = r.Add(sampleConfig("dup"))
	require.Error(t, err)
}

func TestRegistry_AddRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Add(&mcp.ServerConfig{Collection: mcp.CollectionUser, Type: mcp.TransportInMemory})
	require.Error(t, err)
}

func TestRegistry_RemoveSystemCollectionIsRejected(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	cfg := sampleConfig("sys-tool")
	cfg.Collection = mcp.CollectionSystem
	added, err := r.Add(cfg)
	require.NoError(t, err)

	err = r.Remove(added.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, mcperrors.ErrSystemCollection)
}

func TestRegistry_UpdatePreservesCollectionAndCreatedAt(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	added, err := r.Add(sampleConfig("beta"))
	require.NoError(t, err)

	added.Description = "updated description"
	updated, err := r.Update(added)
	require.NoError(t, err)
	assert.Equal(t, mcp.CollectionUser, updated.Collection)
	assert.Equal(t, added.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "updated description", updated.Description)
}

func TestRegistry_SearchMatchesNameCaseInsensitively(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Add(sampleConfig("FileSystemTool"))
	require.NoError(t, err)
	_, err = r.Add(sampleConfig("Other"))
	require.NoError(t, err)

	results := r.Search("filesystem")
	require.Len(t, results, 1)
	assert.Equal(t, "FileSystemTool", results[0].Name)
}

func TestRegistry_ExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	r1 := newTestRegistry(t)
	_, err := r1.Add(sampleConfig("export-me"))
	require.NoError(t, err)

	data, err := r1.Export("")
	require.NoError(t, err)

	r2 := newTestRegistry(t)
	imported, errs := r2.Import(data)
	require.Empty(t, errs)
	require.Len(t, imported, 1)
	assert.Equal(t, mcp.SourceImported, imported[0].Source)
}

func TestRegistry_ImportAcceptsWrapperShape(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	data := []byte(`{"servers":[{"name":"wrapped","type":"inMemory","channel":"chan-wrapped"}]}`)
	imported, errs := r.Import(data)
	require.Empty(t, errs)
	require.Len(t, imported, 1)
	assert.Equal(t, "wrapped", imported[0].Name)
	assert.Equal(t, mcp.SourceImported, imported[0].Source)
}

func TestRegistry_LoadMigratesLegacyBareArrayStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	legacy := filepath.Join(dir, legacyStoreFile)
	data := []byte(`[
		{"name":"legacy-one","type":"inMemory","channel":"chan-one"},
		{"name":"legacy-two","type":"inMemory","channel":"chan-two"}
	]`)
	require.NoError(t, os.WriteFile(legacy, data, 0o644))

	r := New(dir, nil)
	require.NoError(t, r.Load())

	users := r.List(mcp.CollectionUser)
	require.Len(t, users, 2)
	names := []string{users[0].Name, users[1].Name}
	assert.ElementsMatch(t, []string{"legacy-one", "legacy-two"}, names)
	for _, cfg := range users {
		assert.Equal(t, mcp.SourceImported, cfg.Source)
	}

	assert.NoFileExists(t, legacy)
	assert.FileExists(t, legacy+".backup")
}

func TestRegistry_LoadMigratesLegacyWrapperStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	legacy := filepath.Join(dir, legacyStoreFile)
	data := []byte(`{"servers":[{"name":"legacy-wrapped","type":"inMemory","channel":"chan-wrapped"}]}`)
	require.NoError(t, os.WriteFile(legacy, data, 0o644))

	r := New(dir, nil)
	require.NoError(t, r.Load())

	users := r.List(mcp.CollectionUser)
	require.Len(t, users, 1)
	assert.Equal(t, "legacy-wrapped", users[0].Name)
	assert.FileExists(t, legacy+".backup")
}

func TestRegistry_LoadWithoutLegacyStoreIsNoop(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	assert.Empty(t, r.List(""))
}

func TestRegistry_PersistedAcrossLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	r1 := New(dir, nil)
	require.NoError(t, r1.Load())
	added, err := r1.Add(sampleConfig("persisted"))
	require.NoError(t, err)

	r2 := New(dir, nil)
	require.NoError(t, r2.Load())
	got, err := r2.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}
