package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/pending"
)

const (
	wsPingInterval = 30 * time.Second
	// maxOutboundQueue bounds how many Send calls are buffered while a
	// dropped connection with autoReconnect is being redialed (spec.md §5
	// "Backpressure"). Once full, Send fails rather than growing unbounded.
	maxOutboundQueue = 256
)

// WebSocket is the bidirectional websocket wire variant, framing one JSON-RPC
// message per text message (spec.md §4.1 "WebSocket"). When autoReconnect is
// set, a dropped connection is redialed with backoff instead of surfacing a
// terminal error, reusing the same Client identity on success (spec.md §8).
type WebSocket struct {
	*statusMachine
	stats statsTracker

	url     string
	headers map[string]string

	timeout       time.Duration
	retry         mcp.RetryPolicy
	autoReconnect bool
	pendingReqs   *pending.Table

	mu            sync.Mutex
	conn          *websocket.Conn
	done          chan struct{}
	reconnecting  bool
	stopReconnect chan struct{}
	outbound      [][]byte
	writeM        sync.Mutex
}

func buildWebSocket(cfg *mcp.ServerConfig) (Transport, error) {
	return &WebSocket{
		statusMachine: newStatusMachine(),
		url:           cfg.URL,
		headers:       cfg.Headers,
		timeout:       30 * time.Second,
		pendingReqs:   pending.New(),
		autoReconnect: cfg.AutoReconnect,
		retry:         cfg.Retry,
	}, nil
}

func (t *WebSocket) Connect(ctx context.Context) error {
	if t.Status() != mcp.StatusDisconnected {
		return mcperrors.New(mcperrors.KindInternal, fmt.Errorf("websocket transport: connect called from status %s", t.Status()))
	}
	t.setStatus(mcp.StatusConnecting)

	conn, err := dialWebSocket(ctx, t.url, t.headers)
	if err != nil {
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("dial %s: %w", t.url, err))
	}

	t.mu.Lock()
	t.conn = conn
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.readLoop(conn, done)
	go t.pingLoop(conn, done)

	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

func dialWebSocket(ctx context.Context, url string, headers map[string]string) (*websocket.Conn, error) {
	hdr := http.Header{}
	for k, v := range headers {
		hdr.Set(k, v)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(10 * 1024 * 1024)
	return conn, nil
}

func (t *WebSocket) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			t.stats.recordError()
			t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindTransportUnavailable, err))
			t.handleDrop(err)
			return
		}

		var msg mcp.RPCMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logErrorBridge("", fmt.Errorf("websocket: malformed message: %w", err))
			continue
		}
		t.handleInbound(&msg, len(data))
	}
}

// handleDrop reacts to a lost connection: without autoReconnect it's a
// terminal error; with it, a redial-with-backoff goroutine is started and
// the transport stays usable (outbound Sends queue) while it runs.
func (t *WebSocket) handleDrop(cause error) {
	if !t.autoReconnect {
		t.setStatus(mcp.StatusError)
		t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, cause)})
		return
	}

	stop := make(chan struct{})
	t.mu.Lock()
	t.reconnecting = true
	t.stopReconnect = stop
	t.mu.Unlock()

	t.setStatus(mcp.StatusConnecting)
	t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, cause)})
	go t.reconnectLoop(stop)
}

// reconnectLoop redials with exponential backoff configured from the
// ServerConfig's own RetryPolicy, stopping early if stop closes (Disconnect
// was called) or once maxRetries is exhausted.
func (t *WebSocket) reconnectLoop(stop chan struct{}) {
	bo := backoff.NewExponentialBackOff()
	if t.retry.InitialDelayMs > 0 {
		bo.InitialInterval = time.Duration(t.retry.InitialDelayMs) * time.Millisecond
	}
	if t.retry.MaxDelayMs > 0 {
		bo.MaxInterval = time.Duration(t.retry.MaxDelayMs) * time.Millisecond
	}
	if t.retry.BackoffFactor > 0 {
		bo.Multiplier = t.retry.BackoffFactor
	}
	maxTries := uint(t.retry.MaxRetries)
	if maxTries == 0 {
		maxTries = 1
	}

	ctx, cancel := contextUntilClosed(stop)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, t.redial()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))

	if err != nil {
		t.mu.Lock()
		t.reconnecting = false
		t.stopReconnect = nil
		t.mu.Unlock()
		t.setStatus(mcp.StatusError)
		t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, err)})
	}
}

// contextUntilClosed returns a context cancelled when stop closes.
func contextUntilClosed(stop <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// redial dials a fresh connection, starts its read/ping loops, flushes any
// outbound messages queued while reconnecting, and reports connected again.
func (t *WebSocket) redial() error {
	conn, err := dialWebSocket(context.Background(), t.url, t.headers)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	newDone := make(chan struct{})
	t.done = newDone
	t.reconnecting = false
	t.stopReconnect = nil
	queued := t.outbound
	t.outbound = nil
	t.mu.Unlock()

	go t.readLoop(conn, newDone)
	go t.pingLoop(conn, newDone)

	for _, data := range queued {
		t.writeM.Lock()
		werr := conn.Write(context.Background(), websocket.MessageText, data)
		t.writeM.Unlock()
		if werr != nil {
			logErrorBridge("", fmt.Errorf("websocket: flushing queued message after reconnect: %w", werr))
			break
		}
		t.stats.recordSent(len(data))
	}

	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

func (t *WebSocket) handleInbound(msg *mcp.RPCMessage, n int) {
	t.stats.recordReceived(n)
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
	t.emit(TransportEvent{Kind: EventMessage, Message: msg})
}

func (t *WebSocket) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				logErrorBridge("", fmt.Errorf("websocket: ping failed: %w", err))
			}
		}
	}
}

func (t *WebSocket) Disconnect(_ context.Context) error {
	t.setStatus(mcp.StatusDisconnecting)

	t.mu.Lock()
	conn := t.conn
	done := t.done
	stop := t.stopReconnect
	t.reconnecting = false
	t.stopReconnect = nil
	t.outbound = nil
	if done != nil {
		close(done)
	}
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindCanceled, fmt.Errorf("transport disconnected")))

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}

	t.setStatus(mcp.StatusDisconnected)
	t.emit(TransportEvent{Kind: EventDisconnect})
	return nil
}

func (t *WebSocket) Destroy() {
	_ = t.Disconnect(context.Background())
}

func (t *WebSocket) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.timeout = d
}

func (t *WebSocket) SetRetryPolicy(p mcp.RetryPolicy) { t.retry = p }

func (t *WebSocket) Features() Features {
	return Features{Streaming: true, Notifications: true, Sessions: false, Reconnect: t.autoReconnect}
}

func (t *WebSocket) Stats() mcp.Stats { return t.stats.snapshot() }

// Send writes msg to the live connection, or queues it (bounded by
// maxOutboundQueue) when a redial is in progress, flushed in order by
// redial once the new connection is up (spec.md §5 "Backpressure").
func (t *WebSocket) Send(ctx context.Context, msg *mcp.RPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocolError, err)
	}

	t.mu.Lock()
	reconnecting := t.reconnecting
	conn := t.conn
	t.mu.Unlock()

	if reconnecting {
		return t.enqueueOutbound(data)
	}

	if !t.IsConnected() || conn == nil {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("websocket transport %q not connected", t.url))
	}

	t.writeM.Lock()
	err = conn.Write(ctx, websocket.MessageText, data)
	t.writeM.Unlock()
	if err != nil {
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}
	t.stats.recordSent(len(data))
	return nil
}

func (t *WebSocket) enqueueOutbound(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.reconnecting {
		// redial finished between the check in Send and acquiring this lock;
		// caller should retry via the now-live connection instead of queuing.
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("websocket transport %q: reconnect finished, retry send", t.url))
	}
	if len(t.outbound) >= maxOutboundQueue {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("websocket transport %q: outbound queue full while reconnecting", t.url))
	}
	t.outbound = append(t.outbound, data)
	return nil
}

func (t *WebSocket) Request(ctx context.Context, method string, params any) (any, error) {
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

func (t *WebSocket) Notify(ctx context.Context, method string, params any) error {
	return t.Send(ctx, &mcp.RPCMessage{JSONRPC: "2.0", Method: method, Params: params})
}
