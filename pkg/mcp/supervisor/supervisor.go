// Package supervisor owns the lifecycle of live server connections: at most
// one Client per server id, connection attempts deduplicated via
// singleflight, a periodic stdio health check, and event-bus notification on
// every state transition (spec.md §4.3 "ClientSupervisor").
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/client"
	"github.com/deechat/mcp-core/pkg/mcp/events"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport"
)

// healthCheckInterval is how often a connected stdio server is pinged, per
// spec.md §4.3 "30s stdio health-check watchdog".
const healthCheckInterval = 30 * time.Second

// InprocessServer is implemented by a built-in server the Supervisor can
// short-circuit to without going through a Transport at all (spec.md §4.5,
// §6). pkg/mcp/embedded.Adapter (wrapping e.g. fileops.Server) satisfies this.
type InprocessServer interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResponse
}

// entry is the supervisor's bookkeeping for one server id.
type entry struct {
	cfg      *mcp.ServerConfig
	cl       *client.Client
	inproc   InprocessServer
	cancel   context.CancelFunc
	doneOnce sync.Once
	done     chan struct{}
}

// Supervisor is the sole owner of live Client connections.
type Supervisor struct {
	factory *transport.Factory
	bus     *events.Bus

	// inprocessServers is consulted by GetOrOpen before building a real
	// transport; registered by callers that embed a built-in server.
	inprocessServers map[string]InprocessServer

	mu      sync.Mutex
	entries map[string]*entry

	group singleflight.Group
}

// New constructs a Supervisor. bus may be nil, in which case events are
// silently dropped (useful for tests that don't care about notifications).
func New(factory *transport.Factory, bus *events.Bus) *Supervisor {
	return &Supervisor{
		factory:          factory,
		bus:              bus,
		inprocessServers: make(map[string]InprocessServer),
		entries:          make(map[string]*entry),
	}
}

// RegisterInprocess wires a built-in server for serverID. GetOrOpen then
// refuses that id instead of invoking the TransportFactory; callers reach the
// server through Inprocess (spec.md §4.5).
func (s *Supervisor) RegisterInprocess(serverID string, srv InprocessServer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inprocessServers[serverID] = srv
}

// GetOrOpen returns the live Client for cfg.ID, connecting it first if
// necessary. Concurrent callers for the same id share one connection attempt
// (singleflight); there is no negative caching, so a failed attempt is
// retried on the next call (spec.md §4.3).
func (s *Supervisor) GetOrOpen(ctx context.Context, cfg *mcp.ServerConfig) (*client.Client, error) {
	s.mu.Lock()
	if s.inprocessServers[cfg.ID] != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor: server %q is inprocess; use Inprocess instead", cfg.ID)
	}
	if e, ok := s.entries[cfg.ID]; ok && e.cl != nil {
		s.mu.Unlock()
		return e.cl, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(cfg.ID, func() (any, error) {
		// A flight that finished after the check above has already installed
		// the entry; reuse it rather than opening a second connection.
		s.mu.Lock()
		if e, ok := s.entries[cfg.ID]; ok && e.cl != nil {
			s.mu.Unlock()
			return e.cl, nil
		}
		s.mu.Unlock()
		return s.connect(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*client.Client), nil
}

// IsInprocess reports whether serverID has a registered InprocessServer.
func (s *Supervisor) IsInprocess(serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inprocessServers[serverID] != nil
}

// Inprocess returns the registered InprocessServer for serverID, if any.
func (s *Supervisor) Inprocess(serverID string) (InprocessServer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.inprocessServers[serverID]
	return srv, ok
}

func (s *Supervisor) connect(ctx context.Context, cfg *mcp.ServerConfig) (*client.Client, error) {
	tr, err := s.factory.Create(cfg)
	if err != nil {
		return nil, err
	}

	cl := client.New(cfg.ID, cfg.Name, tr)
	if err := cl.Connect(ctx); err != nil {
		s.publish(mcp.EventServerError, cfg.ID, nil, err)
		return nil, mcperrors.WithServer(mcperrors.KindTransportUnavailable, cfg.ID, 0, err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	e := &entry{cfg: cfg, cl: cl, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.entries[cfg.ID] = e
	s.mu.Unlock()

	if cfg.Type == mcp.TransportStdio {
		go s.healthCheckLoop(watchCtx, e)
	}

	s.publish(mcp.EventServerConnected, cfg.ID, nil, nil)
	return cl, nil
}

// healthCheckLoop pings a stdio server every healthCheckInterval; three
// consecutive failures force-close the connection so the next GetOrOpen call
// reconnects from scratch (spec.md §4.3 "30s stdio health-check watchdog").
func (s *Supervisor) healthCheckLoop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := e.cl.Ping(pingCtx)
			cancel()
			if err != nil {
				failures++
				logger.Warnf("supervisor: health check %d/3 failed for %s: %v", failures, e.cfg.ID, err)
				if failures >= 3 {
					logger.Errorf("supervisor: closing %s after repeated health check failures", e.cfg.ID)
					s.Close(context.Background(), e.cfg.ID)
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// Close disconnects and forgets serverID's entry, if any.
func (s *Supervisor) Close(ctx context.Context, serverID string) {
	s.mu.Lock()
	e, ok := s.entries[serverID]
	if ok {
		delete(s.entries, serverID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	e.doneOnce.Do(func() { close(e.done) })
	e.cancel()
	_ = e.cl.Close(ctx)
	s.publish(mcp.EventServerDisconnected, serverID, nil, nil)
}

// CloseAll tears down every live connection, e.g. on process shutdown.
func (s *Supervisor) CloseAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Close(ctx, id)
	}
}

// Status reports the live status for serverID, or disconnected if unknown.
func (s *Supervisor) Status(serverID string) mcp.Status {
	s.mu.Lock()
	e, ok := s.entries[serverID]
	s.mu.Unlock()
	if !ok {
		return mcp.StatusDisconnected
	}
	return e.cl.Status()
}

func (s *Supervisor) publish(t mcp.EventType, serverID string, data any, err error) {
	if s.bus == nil {
		return
	}
	ev := mcp.Event{Type: t, ServerID: serverID, Timestamp: time.Now(), Data: data}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(ev)
}
