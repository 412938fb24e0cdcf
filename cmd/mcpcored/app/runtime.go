// Package app provides the entry point for the mcpcored command-line daemon.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/cache"
	"github.com/deechat/mcp-core/pkg/mcp/embedded"
	"github.com/deechat/mcp-core/pkg/mcp/embedded/fileops"
	"github.com/deechat/mcp-core/pkg/mcp/events"
	"github.com/deechat/mcp-core/pkg/mcp/orchestrator"
	"github.com/deechat/mcp-core/pkg/mcp/platform"
	"github.com/deechat/mcp-core/pkg/mcp/registry"
	"github.com/deechat/mcp-core/pkg/mcp/supervisor"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

// builtinFileopsServerID is the inprocess fileops server's id, carrying
// cache.BuiltinServerIDPrefix so its tool catalog gets the extended
// built-in TTL (spec.md §4.6) instead of the default live-server one.
const builtinFileopsServerID = cache.BuiltinServerIDPrefix + "fileops"

// runtime bundles the wired collaborators one cobra command needs to act on
// the live system: a registry rooted at the configured data directory, a
// supervisor over every transport variant, a cache, and the orchestrator
// facade tying them together.
type runtime struct {
	bus          *events.Bus
	registry     *registry.Registry
	supervisor   *supervisor.Supervisor
	cache        *cache.Cache
	orchestrator *orchestrator.Orchestrator
}

// newRuntime wires one instance of the full stack, rooted at the data
// directory named by the --config-dir flag (falling back to
// platform.DefaultPaths when unset).
func newRuntime() (*runtime, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}

	bus := events.New()
	reg := registry.New(dir, bus)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load config registry: %w", err)
	}

	factory := transport.NewFactory()
	sup := supervisor.New(factory, bus)
	c := cache.New()
	orc := orchestrator.New(reg, sup, c, bus, factory)

	if err := registerBuiltinServers(sup); err != nil {
		return nil, fmt.Errorf("register built-in servers: %w", err)
	}

	return &runtime{bus: bus, registry: reg, supervisor: sup, cache: c, orchestrator: orc}, nil
}

// registerBuiltinServers wires every embedded.Server this binary ships as an
// inprocess Supervisor entry, under a cache.BuiltinServerIDPrefix id.
func registerBuiltinServers(sup *supervisor.Supervisor) error {
	fo, err := fileops.New(context.Background(), &fileops.Config{})
	if err != nil {
		return fmt.Errorf("fileops: %w", err)
	}
	sup.RegisterInprocess(builtinFileopsServerID, embedded.NewAdapter(fo, builtinFileopsServerID, "fileops"))
	return nil
}

// dataDir resolves the directory the registry persists configs under: the
// --config-dir flag/MCPCORED_CONFIG_DIR env var if set, else
// platform.DefaultPaths{AppName: "mcpcored"}.UserDataDir().
func dataDir() (string, error) {
	if d := viper.GetString("config-dir"); d != "" {
		return d, nil
	}
	return platform.DefaultPaths{AppName: "mcpcored"}.UserDataDir()
}

// logEvents subscribes a listener that logs every lifecycle event at debug
// level, returning the Unsubscribe handle so callers can stop listening.
func (rt *runtime) logEvents() events.Unsubscribe {
	return rt.bus.Subscribe(func(ev mcp.Event) {
		if ev.Error != "" {
			logger.Warnf("event %s server=%s: %s", ev.Type, ev.ServerID, ev.Error)
			return
		}
		logger.Debugf("event %s server=%s", ev.Type, ev.ServerID)
	})
}
