// Package orchestrator is the public facade of the MCP client runtime: it
// wires ConfigRegistry, ClientSupervisor, and Cache together and owns
// initialization, connect retries, and tool aggregation (spec.md §4.7).
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cenkalti/backoff/v5"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/cache"
	"github.com/deechat/mcp-core/pkg/mcp/client"
	"github.com/deechat/mcp-core/pkg/mcp/events"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/registry"
	"github.com/deechat/mcp-core/pkg/mcp/supervisor"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

// defaultSettleDelay is how long ConnectWithRetry waits after a transport connects
// before listing tools, because some servers only advertise their full tool
// set once their own post-initialize setup finishes (spec.md §4.7 step 2).
const defaultSettleDelay = 2 * time.Second

// Orchestrator is a process-wide facade; construct one with New and share it.
type Orchestrator struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	cache      *cache.Cache
	bus        *events.Bus
	factory    *transport.Factory

	settleDelay time.Duration

	initOnce sync.Once
	initErr  error
}

// New wires an Orchestrator around already-constructed collaborators. factory
// is used only for TestConnection's ephemeral, supervisor-independent probe.
func New(reg *registry.Registry, sup *supervisor.Supervisor, c *cache.Cache, bus *events.Bus, factory *transport.Factory) *Orchestrator {
	return &Orchestrator{registry: reg, supervisor: sup, cache: c, bus: bus, factory: factory, settleDelay: defaultSettleDelay}
}

// SetSettleDelay overrides the default post-connect settle delay (spec.md
// §4.7 step 2, "about 2s" by default); callers that need faster connects in
// tests may shrink it.
func (o *Orchestrator) SetSettleDelay(d time.Duration) { o.settleDelay = d }

// Initialize loads persisted configs and connects every enabled server,
// sequentially, in registry order. Concurrent callers share one
// initialization via the internal latch (spec.md §4.7 "initializing" latch).
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.initOnce.Do(func() {
		if err := o.registry.Load(); err != nil {
			o.initErr = err
			return
		}
		for _, cfg := range o.registry.List("") {
			if !cfg.IsEnabled {
				continue
			}
			if err := o.ConnectWithRetry(ctx, cfg); err != nil {
				logger.Warnf("orchestrator: initialize: server %s failed to connect: %v", cfg.ID, err)
			}
		}
	})
	return o.initErr
}

// ConnectWithRetry opens cfg's Client via the supervisor, waits a short
// settle delay, and discovers its tools, retrying the whole sequence with
// exponential backoff up to cfg.Retry.MaxRetries attempts (spec.md §4.7).
func (o *Orchestrator) ConnectWithRetry(ctx context.Context, cfg *mcp.ServerConfig) error {
	policy := cfg.Retry
	if policy.MaxRetries == 0 && policy.InitialDelayMs == 0 {
		policy = mcp.DefaultRetryPolicy()
	}

	bo := backoff.NewExponentialBackOff()
	if policy.InitialDelayMs > 0 {
		bo.InitialInterval = time.Duration(policy.InitialDelayMs) * time.Millisecond
	}
	if policy.MaxDelayMs > 0 {
		bo.MaxInterval = time.Duration(policy.MaxDelayMs) * time.Millisecond
	}
	if policy.BackoffFactor > 0 {
		bo.Multiplier = policy.BackoffFactor
	}

	maxTries := uint(policy.MaxRetries)
	if maxTries == 0 {
		maxTries = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := o.attemptConnect(ctx, cfg); err != nil {
			wrapped := mcperrors.WithServer(classify(err), cfg.ID, attempt, err)
			if !mcperrors.IsRetryable(wrapped) {
				return struct{}{}, backoff.Permanent(wrapped)
			}
			return struct{}{}, wrapped
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))

	if err != nil {
		o.publish(mcp.EventServerError, cfg.ID, nil, err)
		return err
	}
	return nil
}

func (o *Orchestrator) attemptConnect(ctx context.Context, cfg *mcp.ServerConfig) error {
	if !o.supervisor.IsInprocess(cfg.ID) {
		if _, err := o.supervisor.GetOrOpen(ctx, cfg); err != nil {
			return err
		}
		if err := sleepCtx(ctx, o.settleDelay); err != nil {
			return err
		}
	}
	tools, err := o.discoverTools(ctx, cfg)
	if err != nil {
		return err
	}
	o.publish(mcp.EventToolDiscovered, cfg.ID, len(tools), nil)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classify picks a taxonomy Kind for an error surfaced from the supervisor or
// client layer. Both layers already wrap with mcperrors where the cause is
// known; anything else is an opaque protocol-level failure.
func classify(err error) mcperrors.Kind {
	var e *mcperrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return mcperrors.KindProtocolError
}

// AddServer validates and persists cfg, then (if enabled) attempts one
// ConnectWithRetry; a failed initial connect is logged, not fatal, and does
// not prevent the config from being added (spec.md §4.7 "AddServer").
func (o *Orchestrator) AddServer(ctx context.Context, cfg *mcp.ServerConfig) (*mcp.ServerConfig, error) {
	added, err := o.registry.Add(cfg)
	if err != nil {
		return nil, err
	}
	if added.IsEnabled {
		if err := o.ConnectWithRetry(ctx, added); err != nil {
			logger.Warnf("orchestrator: AddServer: initial connect failed for %s: %v", added.ID, err)
		}
	}
	return added, nil
}

// RemoveServer closes any live connection, removes the persisted config, and
// invalidates its cache entries (spec.md §4.7 "RemoveServer").
func (o *Orchestrator) RemoveServer(ctx context.Context, id string) error {
	o.supervisor.Close(ctx, id)
	if err := o.registry.Remove(id); err != nil {
		return err
	}
	o.cache.InvalidateServer(id)
	return nil
}

// UpdateServer applies patch to a clone of id's current config and persists
// it. An isEnabled false->true transition attempts ConnectWithRetry, rolling
// isEnabled back to false and re-persisting on failure; a true->false
// transition closes the live connection and invalidates its cache entries
// (spec.md §4.7 "UpdateServer").
func (o *Orchestrator) UpdateServer(ctx context.Context, id string, patch func(*mcp.ServerConfig)) (*mcp.ServerConfig, error) {
	existing, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	next := existing.Clone()
	patch(next)

	updated, err := o.registry.Update(next)
	if err != nil {
		return nil, err
	}

	switch {
	case !existing.IsEnabled && updated.IsEnabled:
		if connErr := o.ConnectWithRetry(ctx, updated); connErr != nil {
			updated.IsEnabled = false
			if _, rerr := o.registry.Update(updated); rerr != nil {
				logger.Errorf("orchestrator: UpdateServer: rollback persist failed for %s: %v", id, rerr)
			}
			return updated, connErr
		}
	case existing.IsEnabled && !updated.IsEnabled:
		o.supervisor.Close(ctx, id)
		o.cache.InvalidateServer(id)
	}
	return updated, nil
}

// GetAllTools returns the cached union of every server's tools if the cache
// holds any; otherwise it discovers tools from every enabled server in
// parallel, caches the results, and returns the union. One server's
// discovery failure is logged and does not affect the others (spec.md §4.7
// "GetAllTools").
func (o *Orchestrator) GetAllTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := o.cache.GetAllTools(); len(cached) > 0 {
		return cached, nil
	}

	enabled := make([]*mcp.ServerConfig, 0)
	for _, cfg := range o.registry.List("") {
		if cfg.IsEnabled {
			enabled = append(enabled, cfg)
		}
	}

	results := make([][]mcp.Tool, len(enabled))
	var g errgroup.Group
	for i, cfg := range enabled {
		i, cfg := i, cfg
		g.Go(func() error {
			tools, err := o.discoverTools(ctx, cfg)
			if err != nil {
				logger.Warnf("orchestrator: GetAllTools: discovery failed for %s: %v", cfg.ID, err)
				return nil
			}
			results[i] = tools
			return nil
		})
	}
	_ = g.Wait()

	var all []mcp.Tool
	for _, tools := range results {
		all = append(all, tools...)
	}
	return all, nil
}

func (o *Orchestrator) discoverTools(ctx context.Context, cfg *mcp.ServerConfig) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	var err error
	if srv, ok := o.supervisor.Inprocess(cfg.ID); ok {
		tools, err = srv.ListTools(ctx)
	} else {
		var cl *client.Client
		cl, err = o.supervisor.GetOrOpen(ctx, cfg)
		if err == nil {
			tools, err = cl.ListTools(ctx)
		}
	}
	if err != nil {
		return nil, err
	}
	o.cache.PutTools(cfg.ID, tools)
	return tools, nil
}

// CallTool serves a cached response if one matches, otherwise routes the
// call to the server's Client (or inprocess server), caches a successful
// result, and emits toolCalled/toolError (spec.md §4.7 "CallTool"). It does
// not update the cached Tool's usage fields (Tool.RecordUsage is not called).
// It never returns a bare error.
func (o *Orchestrator) CallTool(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse {
	if cached, ok := o.cache.GetCall(req); ok {
		return cached
	}

	start := time.Now()
	resp := o.dispatchCall(ctx, req)
	resp.DurationMs = time.Since(start).Milliseconds()

	if resp.Success {
		o.cache.PutCall(req, resp)
		o.publish(mcp.EventToolCalled, req.ServerID, map[string]any{
			"toolName":   req.ToolName,
			"durationMs": resp.DurationMs,
		}, nil)
	} else {
		o.publish(mcp.EventToolError, req.ServerID, map[string]any{
			"toolName":   req.ToolName,
			"durationMs": resp.DurationMs,
		}, errors.New(resp.Error))
	}
	return resp
}

func (o *Orchestrator) dispatchCall(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse {
	if srv, ok := o.supervisor.Inprocess(req.ServerID); ok {
		return srv.CallTool(ctx, req)
	}
	cfg, err := o.registry.Get(req.ServerID)
	if err != nil {
		return mcp.ToolCallResponse{Success: false, Error: err.Error(), CallID: req.CallID}
	}
	cl, err := o.supervisor.GetOrOpen(ctx, cfg)
	if err != nil {
		return mcp.ToolCallResponse{Success: false, Error: err.Error(), CallID: req.CallID}
	}
	return cl.CallTool(ctx, req)
}

// TestConnection opens an independent, ephemeral Client for id outside the
// supervisor's managed entries, pings it, and closes it immediately,
// returning whether the ping succeeded (spec.md §4.7 "TestConnection"). For
// an id with a registered inprocess server it calls that server's ListTools
// instead and reports whether it succeeded.
func (o *Orchestrator) TestConnection(ctx context.Context, id string) bool {
	cfg, err := o.registry.Get(id)
	if err != nil {
		return false
	}
	if srv, ok := o.supervisor.Inprocess(id); ok {
		_, err := srv.ListTools(ctx)
		return err == nil
	}

	tr, err := o.factory.Create(cfg)
	if err != nil {
		return false
	}
	cl := client.New(cfg.ID, cfg.Name, tr)
	if err := cl.Connect(ctx); err != nil {
		return false
	}
	defer func() { _ = cl.Close(ctx) }()
	return cl.Ping(ctx) == nil
}

// Shutdown tears down every live connection and stops the cache sweeper.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.supervisor.CloseAll(ctx)
	o.cache.Destroy()
}

func (o *Orchestrator) publish(t mcp.EventType, serverID string, data any, err error) {
	if o.bus == nil {
		return
	}
	ev := mcp.Event{Type: t, ServerID: serverID, Timestamp: time.Now(), Data: data}
	if err != nil {
		ev.Error = err.Error()
	}
	o.bus.Publish(ev)
}
