// Package registry persists ServerConfig entries to disk, one JSON file per
// server per collection directory (system/project/user), guarded by
// cross-process file locks so the desktop app and any companion CLI never
// corrupt each other's writes (spec.md §4.4 "ConfigRegistry").
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/events"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

// lockTimeout bounds how long Add/Update/Remove wait for the collection's
// file lock before giving up, so one stuck process can't wedge every other.
const lockTimeout = 5 * time.Second

// legacyStoreFile is the single-file config store that predates the
// system/project/user collection layout (spec.md §4.3 "migration step", §6
// "Legacy store").
const legacyStoreFile = "mcp-servers.json"

// Registry is the durable store of ServerConfig entries across the three
// collections spec.md §3 defines.
type Registry struct {
	baseDir string
	dirs    map[mcp.Collection]string
	bus     *events.Bus

	mu      sync.RWMutex
	configs map[string]*mcp.ServerConfig // id -> config, in-memory mirror
}

// New constructs a Registry rooted at baseDir, with one subdirectory per
// collection (baseDir/system, baseDir/project, baseDir/user). It does not
// load existing configs; call Load for that.
func New(baseDir string, bus *events.Bus) *Registry {
	return &Registry{
		baseDir: baseDir,
		dirs: map[mcp.Collection]string{
			mcp.CollectionSystem:  filepath.Join(baseDir, "system"),
			mcp.CollectionProject: filepath.Join(baseDir, "project"),
			mcp.CollectionUser:    filepath.Join(baseDir, "user"),
		},
		bus:     bus,
		configs: make(map[string]*mcp.ServerConfig),
	}
}

// Load reads every *.json file under each collection directory into memory,
// then runs the legacy-store migration. A per-file parse failure is logged
// and skipped rather than aborting the whole load, since one corrupt file
// shouldn't take down every other server.
func (r *Registry) Load() error {
	if err := r.loadCollections(); err != nil {
		return err
	}

	// migrateLegacyStore calls Add, which takes r.mu itself, so it must run
	// after loadCollections has released the lock.
	if err := r.migrateLegacyStore(); err != nil {
		logger.Warnf("registry: legacy store migration: %v", err)
	}
	return nil
}

func (r *Registry) loadCollections() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for collection, dir := range r.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("registry: create %s dir: %w", collection, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("registry: read %s dir: %w", collection, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasSuffix(entry.Name(), ".lock") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			cfg, err := readConfig(path)
			if err != nil {
				logger.Warnf("registry: skipping unreadable config %s: %v", path, err)
				continue
			}
			cfg.Collection = collection
			if cfg.Execution == "" {
				cfg.Execution = InferExecutionMode(cfg)
			}
			r.configs[cfg.ID] = cfg
		}
	}
	return nil
}

// migrateLegacyStore looks for baseDir/mcp-servers.json; if present, every
// entry is imported into the user collection and the file is renamed to
// *.backup so a later Load never re-imports it (spec.md §4.3, §8 scenario 5).
func (r *Registry) migrateLegacyStore() error {
	path := filepath.Join(r.baseDir, legacyStoreFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy store %s: %w", path, err)
	}

	configs, err := parseServerList(data)
	if err != nil {
		return fmt.Errorf("parse legacy store %s: %w", path, err)
	}

	for _, cfg := range configs {
		cfg.Collection = mcp.CollectionUser
		cfg.Source = mcp.SourceImported
		cfg.ID = ""
		if _, err := r.Add(cfg); err != nil {
			logger.Warnf("registry: skipping legacy entry %q: %v", cfg.Name, err)
		}
	}

	backup := path + ".backup"
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("rename legacy store to %s: %w", backup, err)
	}
	logger.Infof("registry: migrated %d legacy server(s) from %s", len(configs), path)
	return nil
}

// InferExecutionMode fills ServerConfig.Execution from the transport type and command
// when the caller leaves it blank (spec.md §3's ExecutionMode, §4.4 "execution
// mode inference"): inMemory -> inprocess; a command running under a known
// sandbox wrapper -> sandbox; everything else -> standard.
func InferExecutionMode(cfg *mcp.ServerConfig) mcp.ExecutionMode {
	if cfg.Type == mcp.TransportInMemory {
		return mcp.ExecutionInprocess
	}
	if cfg.Type == mcp.TransportStdio {
		switch cfg.Command {
		case "sandbox-exec", "bwrap", "firejail":
			return mcp.ExecutionSandbox
		}
	}
	return mcp.ExecutionStandard
}

// Get returns a clone of the config for id.
func (r *Registry) Get(id string) (*mcp.ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrNotFound)
	}
	return cfg.Clone(), nil
}

// List returns clones of every config, optionally filtered to one collection
// (pass "" for every collection).
func (r *Registry) List(collection mcp.Collection) []*mcp.ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*mcp.ServerConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		if collection != "" && cfg.Collection != collection {
			continue
		}
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search does a case-insensitive substring match over name/description/tags.
func (r *Registry) Search(query string) []*mcp.ServerConfig {
	query = strings.ToLower(query)
	all := r.List("")
	if query == "" {
		return all
	}

	out := make([]*mcp.ServerConfig, 0, len(all))
	for _, cfg := range all {
		if strings.Contains(strings.ToLower(cfg.Name), query) ||
			strings.Contains(strings.ToLower(cfg.Description), query) ||
			containsTag(cfg.Tags, query) {
			out = append(out, cfg)
		}
	}
	return out
}

func containsTag(tags []string, query string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), query) {
			return true
		}
	}
	return false
}

// Add validates cfg, assigns an id if empty, and persists it. It returns
// mcperrors.ErrDuplicateName if (collection, name) already exists.
func (r *Registry) Add(cfg *mcp.ServerConfig) (*mcp.ServerConfig, error) {
	if err := Validate(cfg); err != nil {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Execution == "" {
		cfg.Execution = InferExecutionMode(cfg)
	}
	now := stampTime()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	unlock, err := r.lock(cfg.Collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.Lock()
	if r.nameClashLocked(cfg.Collection, cfg.Name, "") {
		r.mu.Unlock()
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrDuplicateName)
	}
	stored := cfg.Clone()
	r.configs[stored.ID] = stored
	r.mu.Unlock()

	if err := r.persist(stored); err != nil {
		return nil, err
	}
	r.publish(mcp.EventConfigAdded, stored)
	return stored.Clone(), nil
}

// Update replaces the config for cfg.ID. Collection/Source/ID/CreatedAt carry
// over from the existing entry; a caller cannot move a config between
// collections or resurrect it under a new id via Update.
func (r *Registry) Update(cfg *mcp.ServerConfig) (*mcp.ServerConfig, error) {
	if err := Validate(cfg); err != nil {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, err)
	}

	r.mu.Lock()
	existing, ok := r.configs[cfg.ID]
	if !ok {
		r.mu.Unlock()
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrNotFound)
	}
	if r.nameClashLocked(existing.Collection, cfg.Name, cfg.ID) {
		r.mu.Unlock()
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrDuplicateName)
	}
	collection := existing.Collection
	source := existing.Source
	createdAt := existing.CreatedAt
	r.mu.Unlock()

	unlock, err := r.lock(collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated := cfg.Clone()
	updated.Collection = collection
	updated.Source = source
	updated.CreatedAt = createdAt
	updated.UpdatedAt = stampTime()
	if updated.Execution == "" {
		updated.Execution = InferExecutionMode(updated)
	}

	r.mu.Lock()
	r.configs[updated.ID] = updated
	r.mu.Unlock()

	if err := r.persist(updated); err != nil {
		return nil, err
	}
	r.publish(mcp.EventConfigUpdated, updated)
	return updated.Clone(), nil
}

// Remove deletes id's config. System-collection entries can never be
// removed through the public path (spec.md §4.4).
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrNotFound)
	}
	if cfg.Collection == mcp.CollectionSystem {
		r.mu.Unlock()
		return mcperrors.New(mcperrors.KindConfigInvalid, mcperrors.ErrSystemCollection)
	}
	r.mu.Unlock()

	unlock, err := r.lock(cfg.Collection)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	delete(r.configs, id)
	r.mu.Unlock()

	path := r.pathFor(cfg)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("registry: remove %s: %w", path, err)
	}
	r.publish(mcp.EventConfigRemoved, cfg)
	return nil
}

// Export returns a JSON document of every config in collection (or all
// collections if ""), with Runtime stripped since it is never persisted.
func (r *Registry) Export(collection mcp.Collection) ([]byte, error) {
	configs := r.List(collection)
	return json.MarshalIndent(configs, "", "  ")
}

// Import parses data as a list of ServerConfig and Add()s each one, marking
// Source as imported. Entries that fail validation are collected and
// returned alongside however many succeeded, rather than aborting the batch.
// data may be a bare JSON array or the legacy {"servers": [...]} wrapper
// shape (spec.md §4.4 "Import(data, collection=user): migrates legacy shape
// if present, then Add").
func (r *Registry) Import(data []byte) (imported []*mcp.ServerConfig, errs []error) {
	configs, err := parseServerList(data)
	if err != nil {
		return nil, []error{fmt.Errorf("registry: import: %w", err)}
	}
	for _, cfg := range configs {
		cfg.Source = mcp.SourceImported
		cfg.ID = ""
		if cfg.Collection == "" {
			cfg.Collection = mcp.CollectionUser
		}
		added, err := r.Add(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Name, err))
			continue
		}
		imported = append(imported, added)
	}
	return imported, errs
}

// Cleanup removes any config file on disk whose id is not present in memory,
// e.g. left behind by a crash between write and index update.
func (r *Registry) Cleanup() error {
	r.mu.RLock()
	known := make(map[string]bool, len(r.configs))
	for id := range r.configs {
		known[id] = true
	}
	r.mu.RUnlock()

	for _, dir := range r.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), ".json")
			if !known[id] {
				path := filepath.Join(dir, entry.Name())
				if err := os.Remove(path); err != nil {
					logger.Warnf("registry: cleanup failed to remove %s: %v", path, err)
				}
			}
		}
	}
	return nil
}

// Subscribe forwards every config* event to fn, returning an unsubscribe
// func. A nil Registry.bus makes this a no-op subscription.
func (r *Registry) Subscribe(fn func(mcp.Event)) func() {
	if r.bus == nil {
		return func() {}
	}
	return r.bus.Subscribe(func(ev mcp.Event) {
		switch ev.Type {
		case mcp.EventConfigAdded, mcp.EventConfigUpdated, mcp.EventConfigRemoved:
			fn(ev)
		}
	})
}

func (r *Registry) nameClashLocked(collection mcp.Collection, name, excludeID string) bool {
	for id, cfg := range r.configs {
		if id == excludeID {
			continue
		}
		if cfg.Collection == collection && cfg.Name == name {
			return true
		}
	}
	return false
}

func (r *Registry) pathFor(cfg *mcp.ServerConfig) string {
	return filepath.Join(r.dirs[cfg.Collection], cfg.ID+".json")
}

func (r *Registry) persist(cfg *mcp.ServerConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal %s: %w", cfg.ID, err)
	}
	path := r.pathFor(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("registry: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("registry: rename %s: %w", tmp, err)
	}
	return nil
}

// lock acquires the collection-wide file lock used to serialize writers
// across processes (spec.md §4.4: "cross-process file locking"), returning
// an unlock func the caller must defer.
func (r *Registry) lock(collection mcp.Collection) (func(), error) {
	dir := r.dirs[collection]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create %s dir: %w", collection, err)
	}
	lockPath := filepath.Join(dir, ".registry.lock")
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("registry: lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("registry: timed out acquiring lock %s", lockPath)
	}

	return func() { _ = fl.Unlock() }, nil
}

// parseServerList accepts either shape spec.md §6 documents for imported or
// legacy server data: a bare array of ServerConfig-like objects, or a
// {"servers": [...]} wrapper.
func parseServerList(data []byte) ([]*mcp.ServerConfig, error) {
	var configs []*mcp.ServerConfig
	if err := json.Unmarshal(data, &configs); err == nil {
		return configs, nil
	}
	var wrapper struct {
		Servers []*mcp.ServerConfig `json:"servers"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Servers, nil
}

func readConfig(path string) (*mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg mcp.ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Registry) publish(t mcp.EventType, cfg *mcp.ServerConfig) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(mcp.Event{Type: t, ServerID: cfg.ID, Timestamp: time.Now(), Data: cfg.Clone()})
}

// stampTime is its own function so tests can see exactly where "now" is
// read, rather than time.Now() calls scattered across this file.
func stampTime() time.Time { return time.Now() }
