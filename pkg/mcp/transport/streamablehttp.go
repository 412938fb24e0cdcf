package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/pending"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/ssescan"
)

const (
	headerSessionID      = "Mcp-Session-Id"
	headerProtocolVersion = "MCP-Protocol-Version"
)

// StreamableHTTP is the current-generation HTTP wire variant: requests go out
// as HTTP POSTs and responses either return inline (content-type
// application/json) or arrive asynchronously over a companion SSE GET stream
// keyed by a server-issued session id (spec.md §4.1 "StreamableHTTP").
type StreamableHTTP struct {
	*statusMachine
	stats statsTracker

	url     string
	headers map[string]string

	httpClient  *http.Client
	timeout     time.Duration
	retry       mcp.RetryPolicy
	pendingReqs *pending.Table

	mu        sync.Mutex
	sessionID string
	cancelSSE context.CancelFunc
	done      chan struct{}
}

func buildStreamableHTTP(cfg *mcp.ServerConfig) (Transport, error) {
	return &StreamableHTTP{
		statusMachine: newStatusMachine(),
		url:           cfg.URL,
		headers:       cfg.Headers,
		httpClient:    &http.Client{Timeout: 0},
		timeout:       30 * time.Second,
		pendingReqs:   pending.New(),
	}, nil
}

func (t *StreamableHTTP) Connect(ctx context.Context) error {
	if t.Status() != mcp.StatusDisconnected {
		return mcperrors.New(mcperrors.KindInternal, fmt.Errorf("streamableHttp transport: connect called from status %s", t.Status()))
	}
	t.setStatus(mcp.StatusConnecting)

	sseCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancelSSE = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.streamLoop(sseCtx)

	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

// streamLoop opens the companion SSE GET and delivers every event as an
// inbound message. It is allowed to fail silently (some servers are
// request/response only) -- Request still works via the POST's own body.
func (t *StreamableHTTP) streamLoop(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return
	}
	t.applyHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Debugf("streamableHttp transport %s: companion SSE unavailable: %v", t.url, err)
		return
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(headerSessionID); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	scanner := ssescan.New(resp.Body)
	for {
		ev, err := scanner.Next()
		if err != nil {
			if err != io.EOF {
				logger.Debugf("streamableHttp transport %s: SSE stream ended: %v", t.url, err)
			}
			return
		}
		var msg mcp.RPCMessage
		if jsonErr := json.Unmarshal([]byte(ev.Data), &msg); jsonErr != nil {
			continue
		}
		t.handleInbound(&msg, len(ev.Data))
	}
}

func (t *StreamableHTTP) handleInbound(msg *mcp.RPCMessage, n int) {
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

func (t *StreamableHTTP) applyHeaders(req *http.Request) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(headerProtocolVersion, mcp.ProtocolVersion)
	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	if sid != "" {
		req.Header.Set(headerSessionID, sid)
	}
}

func (t *StreamableHTTP) Disconnect(ctx context.Context) error {
	t.setStatus(mcp.StatusDisconnecting)

	t.terminateSession(ctx)

	t.mu.Lock()
	cancel := t.cancelSSE
	done := t.done
	if done != nil {
		close(done)
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindCanceled, fmt.Errorf("transport disconnected")))

	t.setStatus(mcp.StatusDisconnected)
	t.emit(TransportEvent{Kind: EventDisconnect})
	return nil
}

// terminateSession sends the DELETE the spec's StreamableHTTP section
// requires to end a session explicitly, carrying the session id the server
// issued us. No session, no request: the server never opened one to close.
// Failures are logged and otherwise ignored, since local teardown proceeds
// either way.
func (t *StreamableHTTP) terminateSession(ctx context.Context) {
	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	if sid == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
	if err != nil {
		logger.Debugf("streamableHttp transport %s: building session DELETE: %v", t.url, err)
		return
	}
	t.applyHeaders(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Debugf("streamableHttp transport %s: session DELETE failed: %v", t.url, err)
		return
	}
	defer resp.Body.Close()
}

func (t *StreamableHTTP) Destroy() {
	_ = t.Disconnect(context.Background())
}

func (t *StreamableHTTP) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.timeout = d
}

func (t *StreamableHTTP) SetRetryPolicy(p mcp.RetryPolicy) { t.retry = p }

func (t *StreamableHTTP) Features() Features {
	return Features{Streaming: true, Notifications: true, Sessions: true, Reconnect: false}
}

func (t *StreamableHTTP) Stats() mcp.Stats { return t.stats.snapshot() }

// Send POSTs msg. A JSON response body is handled inline; a 202 Accepted
// defers the response to the companion SSE stream.
func (t *StreamableHTTP) Send(ctx context.Context, msg *mcp.RPCMessage) error {
	if !t.IsConnected() {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("streamableHttp transport %q not connected", t.url))
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocolError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return mcperrors.New(mcperrors.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	t.applyHeaders(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(headerSessionID); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return mcperrors.New(mcperrors.KindProtocolError, fmt.Errorf("streamableHttp %d: %s", resp.StatusCode, data))
	}
	t.stats.recordSent(len(body))

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcperrors.New(mcperrors.KindTransportUnavailable, err)
		}
		var reply mcp.RPCMessage
		if err := json.Unmarshal(data, &reply); err != nil {
			return mcperrors.New(mcperrors.KindProtocolError, err)
		}
		t.handleInbound(&reply, len(data))
	}
	return nil
}

func (t *StreamableHTTP) Request(ctx context.Context, method string, params any) (any, error) {
	if !t.IsConnected() {
		return nil, mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("streamableHttp transport %q not connected", t.url))
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

func (t *StreamableHTTP) Notify(ctx context.Context, method string, params any) error {
	return t.Send(ctx, &mcp.RPCMessage{JSONRPC: "2.0", Method: method, Params: params})
}
