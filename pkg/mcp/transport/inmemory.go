package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/pending"
)

// paramsToMap normalizes params into a plain map regardless of whether the
// caller handed over a map[string]any directly (as the literal test
// scenarios in spec.md §8 do) or a typed SDK params struct (as pkg/mcp/client
// does) -- every real transport variant round-trips through JSON anyway, so
// doing it here keeps the self-handler's behavior identical either way.
func paramsToMap(params any) map[string]any {
	if m, ok := params.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

// SelfHandler answers requests for a self-handling InMemory transport,
// simulating a server without a real second peer (spec.md §4.1 "InMemory").
type SelfHandler interface {
	Handle(ctx context.Context, method string, params any) (any, error)
}

// echoToolHandler is the default self-handler: it exposes one tool,
// "test-tool", which echoes its "input" argument prefixed with "Processed: ".
// This is the literal happy-path scenario from spec.md §8 scenario 1.
type echoToolHandler struct{}

func (echoToolHandler) Handle(_ context.Context, method string, params any) (any, error) {
	switch method {
	case "initialize":
		return map[string]any{
			"protocolVersion": mcp.ProtocolVersion,
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "inmemory-echo", "version": "0.0.0"},
		}, nil
	case "tools/list":
		return map[string]any{
			"tools": []map[string]any{
				{
					"name":        "test-tool",
					"description": "echoes its input argument",
					"inputSchema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"input": map[string]any{"type": "string"}},
					},
				},
			},
		}, nil
	case "tools/call":
		p := paramsToMap(params)
		name, _ := p["name"].(string)
		if name != "test-tool" {
			return nil, &mcp.RPCError{Code: -32602, Message: fmt.Sprintf("unknown tool %q", name)}
		}
		args, _ := p["arguments"].(map[string]any)
		input, _ := args["input"].(string)
		return map[string]any{"toolResult": fmt.Sprintf("Processed: %s", input)}, nil
	case "ping":
		return map[string]any{}, nil
	default:
		return nil, &mcp.RPCError{Code: -32601, Message: "method not found: " + method}
	}
}

// broker is the process-global registry of channels an InMemory transport can
// join. It is a package-level instance (defaultBroker); a transport joins its
// channel on Connect and leaves it on Disconnect.
type broker struct {
	mu       sync.Mutex
	channels map[string][]*InMemory
}

var defaultBroker = &broker{channels: make(map[string][]*InMemory)}

func (b *broker) join(channel string, t *InMemory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel] = append(b.channels[channel], t)
}

func (b *broker) leave(channel string, t *InMemory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	peers := b.channels[channel]
	for i, p := range peers {
		if p == t {
			b.channels[channel] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
}

func (b *broker) peers(channel string, exclude *InMemory) []*InMemory {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*InMemory
	for _, p := range b.channels[channel] {
		if p != exclude {
			out = append(out, p)
		}
	}
	return out
}

// InMemory is the in-process loopback transport variant.
type InMemory struct {
	*statusMachine
	stats statsTracker

	channel    string
	selfHandle bool
	handler    SelfHandler

	timeout     time.Duration
	retry       mcp.RetryPolicy
	pendingReqs *pending.Table

	mu   sync.Mutex
	live bool
}

// NewInMemory constructs an InMemory transport joined to channel. When
// selfHandle is true and handler is nil, the default echo-tool handler is
// used (spec.md §8 scenario 1).
func NewInMemory(channel string, selfHandle bool, handler SelfHandler) *InMemory {
	if selfHandle && handler == nil {
		handler = echoToolHandler{}
	}
	return &InMemory{
		statusMachine: newStatusMachine(),
		channel:       channel,
		selfHandle:    selfHandle,
		handler:       handler,
		timeout:       30 * time.Second,
		pendingReqs:   pending.New(),
	}
}

func buildInMemory(cfg *mcp.ServerConfig) (Transport, error) {
	return NewInMemory(cfg.Channel, cfg.SelfHandle, nil), nil
}

func (t *InMemory) Connect(_ context.Context) error {
	if t.Status() != mcp.StatusDisconnected {
		return mcperrors.New(mcperrors.KindInternal, fmt.Errorf("inmemory transport: connect called from status %s", t.Status()))
	}
	t.setStatus(mcp.StatusConnecting)
	defaultBroker.join(t.channel, t)
	t.mu.Lock()
	t.live = true
	t.mu.Unlock()
	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

func (t *InMemory) Disconnect(_ context.Context) error {
	t.setStatus(mcp.StatusDisconnecting)
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
	defaultBroker.leave(t.channel, t)
	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindCanceled, fmt.Errorf("transport disconnected")))
	t.setStatus(mcp.StatusDisconnected)
	t.emit(TransportEvent{Kind: EventDisconnect})
	return nil
}

func (t *InMemory) Destroy() {
	_ = t.Disconnect(context.Background())
}

func (t *InMemory) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.timeout = d
}

func (t *InMemory) SetRetryPolicy(p mcp.RetryPolicy) { t.retry = p }

func (t *InMemory) Features() Features {
	return Features{Streaming: false, Notifications: true, Sessions: false, Reconnect: false}
}

func (t *InMemory) Stats() mcp.Stats { return t.stats.snapshot() }

func (t *InMemory) Send(_ context.Context, msg *mcp.RPCMessage) error {
	if !t.IsConnected() {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("inmemory transport %q not connected", t.channel))
	}
	t.stats.recordSent(0)
	t.dispatch(msg)
	return nil
}

// dispatch delivers msg to every other peer on the channel, or, in self-
// handle mode with no peers, to this transport's own handler -- both
// happening on the next scheduler tick to preserve the "asynchronous,
// next-tick" delivery spec.md §4.1 specifies.
func (t *InMemory) dispatch(msg *mcp.RPCMessage) {
	peers := defaultBroker.peers(t.channel, t)
	if len(peers) == 0 {
		if t.selfHandle {
			go t.handleSelf(msg, t)
		}
		return
	}
	for _, p := range peers {
		go p.receive(msg, t)
	}
}

// handleSelf answers msg locally and routes the response back to from --
// which is t itself in the no-peer loopback case, or the remote sender when
// t is acting as the server side of a two-party channel.
func (t *InMemory) handleSelf(msg *mcp.RPCMessage, from *InMemory) {
	if !msg.IsRequest() {
		return
	}
	result, err := t.handler.Handle(context.Background(), msg.Method, msg.Params)
	resp := &mcp.RPCMessage{JSONRPC: "2.0", ID: msg.ID}
	if err != nil {
		if rpcErr, ok := err.(*mcp.RPCError); ok {
			resp.Error = rpcErr
		} else {
			resp.Error = &mcp.RPCError{Code: -32603, Message: err.Error()}
		}
	} else {
		resp.Result = result
	}
	from.receive(resp, t)
}

func (t *InMemory) receive(msg *mcp.RPCMessage, from *InMemory) {
	t.mu.Lock()
	live := t.live
	t.mu.Unlock()
	if !live {
		return
	}
	t.stats.recordReceived(0)

	if msg.IsResponse() {
		id, ok := toInt64(msg.ID)
		if !ok {
			return
		}
		if msg.Error != nil {
			t.pendingReqs.Resolve(id, nil, msg.Error)
		} else {
			t.pendingReqs.Resolve(id, msg.Result, nil)
		}
		return
	}

	if msg.IsRequest() && t.selfHandle {
		t.handleSelf(msg, from)
		return
	}

	t.emit(TransportEvent{Kind: EventMessage, Message: msg})
}

func (t *InMemory) Request(ctx context.Context, method string, params any) (any, error) {
	if !t.IsConnected() {
		return nil, mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("inmemory transport %q not connected", t.channel))
	}
	id, wait := t.pendingReqs.Register(t.timeout)
	msg := &mcp.RPCMessage{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := t.Send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case res := <-wait:
		if res.Err != nil {
			t.stats.recordError()
			return nil, res.Err
		}
		return res.Value, nil
	case <-ctx.Done():
		return nil, mcperrors.New(mcperrors.KindCanceled, ctx.Err())
	}
}

func (t *InMemory) Notify(ctx context.Context, method string, params any) error {
	return t.Send(ctx, &mcp.RPCMessage{JSONRPC: "2.0", Method: method, Params: params})
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
