package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/pending"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/ssescan"
)

// SSE is the legacy, deprecated transport: a long-lived SSE GET carries
// server->client traffic, and the client posts to an "endpoint" event the
// server announces on connect (spec.md §4.1 "SSE (legacy, deprecated)").
type SSE struct {
	*statusMachine
	stats statsTracker

	baseURL string
	headers map[string]string

	httpClient  *http.Client
	timeout     time.Duration
	retry       mcp.RetryPolicy
	pendingReqs *pending.Table

	mu         sync.Mutex
	postURL    string
	cancelRead context.CancelFunc
	ready      chan struct{}
	readyOnce  sync.Once
}

func buildSSE(cfg *mcp.ServerConfig) (Transport, error) {
	return &SSE{
		statusMachine: newStatusMachine(),
		baseURL:       cfg.URL,
		headers:       cfg.Headers,
		httpClient:    &http.Client{Timeout: 0},
		timeout:       30 * time.Second,
		pendingReqs:   pending.New(),
		ready:         make(chan struct{}),
	}, nil
}

func (t *SSE) Connect(ctx context.Context) error {
	if t.Status() != mcp.StatusDisconnected {
		return mcperrors.New(mcperrors.KindInternal, fmt.Errorf("sse transport: connect called from status %s", t.Status()))
	}
	logger.Warnf("sse transport %s: the legacy SSE variant is deprecated; prefer streamableHttp", t.baseURL)
	t.setStatus(mcp.StatusConnecting)

	readCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancelRead = cancel
	t.mu.Unlock()

	go t.streamLoop(readCtx)

	select {
	case <-t.ready:
	case <-ctx.Done():
		cancel()
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindCanceled, ctx.Err())
	case <-time.After(t.timeout):
		cancel()
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindTimeout, fmt.Errorf("sse transport: no endpoint event within %s", t.timeout))
	}

	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

func (t *SSE) streamLoop(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		return
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, err)})
		return
	}
	defer resp.Body.Close()

	scanner := ssescan.New(resp.Body)
	for {
		ev, err := scanner.Next()
		if err != nil {
			if err != io.EOF {
				t.stats.recordError()
				t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, err)})
			}
			return
		}

		if ev.Name == "endpoint" {
			t.mu.Lock()
			t.postURL = resolveEndpoint(t.baseURL, ev.Data)
			t.mu.Unlock()
			t.readyOnce.Do(func() { close(t.ready) })
			continue
		}

		var msg mcp.RPCMessage
		if jsonErr := json.Unmarshal([]byte(ev.Data), &msg); jsonErr != nil {
			continue
		}
		t.handleInbound(&msg, len(ev.Data))
	}
}

func resolveEndpoint(base, endpoint string) string {
	if len(endpoint) > 0 && (endpoint[0] == 'h') {
		return endpoint
	}
	// Relative endpoint: join with the base SSE URL's scheme+host, the way
	// the legacy spec's sample servers announce it.
	b, err := url.Parse(base)
	if err != nil {
		return base + endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return base + endpoint
	}
	return b.ResolveReference(ref).String()
}

func (t *SSE) handleInbound(msg *mcp.RPCMessage, n int) {
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

func (t *SSE) Disconnect(_ context.Context) error {
	t.setStatus(mcp.StatusDisconnecting)

	t.mu.Lock()
	cancel := t.cancelRead
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindCanceled, fmt.Errorf("transport disconnected")))

	t.setStatus(mcp.StatusDisconnected)
	t.emit(TransportEvent{Kind: EventDisconnect})
	return nil
}

func (t *SSE) Destroy() {
	_ = t.Disconnect(context.Background())
}

func (t *SSE) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.timeout = d
}

func (t *SSE) SetRetryPolicy(p mcp.RetryPolicy) { t.retry = p }

func (t *SSE) Features() Features {
	return Features{Streaming: true, Notifications: true, Sessions: false, Reconnect: false}
}

func (t *SSE) Stats() mcp.Stats { return t.stats.snapshot() }

func (t *SSE) Send(ctx context.Context, msg *mcp.RPCMessage) error {
	if !t.IsConnected() {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("sse transport %q not connected", t.baseURL))
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocolError, err)
	}

	t.mu.Lock()
	postURL := t.postURL
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return mcperrors.New(mcperrors.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return mcperrors.New(mcperrors.KindProtocolError, fmt.Errorf("sse post %d: %s", resp.StatusCode, data))
	}
	t.stats.recordSent(len(body))
	return nil
}

func (t *SSE) Request(ctx context.Context, method string, params any) (any, error) {
	if !t.IsConnected() {
		return nil, mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("sse transport %q not connected", t.baseURL))
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

func (t *SSE) Notify(ctx context.Context, method string, params any) error {
	return t.Send(ctx, &mcp.RPCMessage{JSONRPC: "2.0", Method: method, Params: params})
}
