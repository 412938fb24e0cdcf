package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/deechat/mcp-core/pkg/logger"
	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
	"github.com/deechat/mcp-core/pkg/mcp/transport/internal/pending"
)

// killGrace is how long Disconnect waits after SIGTERM before escalating to
// SIGKILL (spec.md §4.1 "Stdio").
const killGrace = 5 * time.Second

// Stdio frames JSON-RPC messages one-per-line over a child process's
// stdin/stdout, the way a local command-line MCP server is normally run.
type Stdio struct {
	*statusMachine
	stats statsTracker

	command string
	args    []string
	workdir string
	env     map[string]string

	timeout     time.Duration
	retry       mcp.RetryPolicy
	pendingReqs *pending.Table

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writeM sync.Mutex
	done   chan struct{}
}

func buildStdio(cfg *mcp.ServerConfig) (Transport, error) {
	return &Stdio{
		statusMachine: newStatusMachine(),
		command:       cfg.Command,
		args:          append([]string(nil), cfg.Args...),
		workdir:       cfg.WorkingDirectory,
		env:           cfg.Env,
		timeout:       30 * time.Second,
		pendingReqs:   pending.New(),
	}, nil
}

func (t *Stdio) Connect(ctx context.Context) error {
	if t.Status() != mcp.StatusDisconnected {
		return mcperrors.New(mcperrors.KindInternal, fmt.Errorf("stdio transport: connect called from status %s", t.Status()))
	}
	t.setStatus(mcp.StatusConnecting)

	cmd := exec.Command(t.command, t.args...)
	if t.workdir != "" {
		cmd.Dir = t.workdir
	}
	if len(t.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range t.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	cmd.Stderr = stderrSink{command: t.command}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		t.setStatus(mcp.StatusError)
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("spawn %q: %w", t.command, err))
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(stdout)
	go t.waitLoop()

	t.stats.recordConnected(time.Now())
	t.setStatus(mcp.StatusConnected)
	t.emit(TransportEvent{Kind: EventConnect})
	return nil
}

// readLoop scans the child's stdout line by line (spec.md §4.1: "framing uses
// bufio.Scanner"). Non-JSON lines are logged at debug and dropped rather than
// treated as protocol errors, since well-behaved servers sometimes write
// banners or diagnostics to stdout.
func (t *Stdio) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg mcp.RPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Debugf("stdio transport %s: dropping non-JSON line: %s", t.command, line)
			continue
		}
		t.handleInbound(&msg, len(line))
	}
}

func (t *Stdio) handleInbound(msg *mcp.RPCMessage, n int) {
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

func (t *Stdio) waitLoop() {
	t.mu.Lock()
	cmd := t.cmd
	done := t.done
	t.mu.Unlock()

	err := cmd.Wait()
	select {
	case <-done:
		return
	default:
	}
	t.stats.recordError()
	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("child process exited: %w", err)))
	t.setStatus(mcp.StatusError)
	t.emit(TransportEvent{Kind: EventError, Err: mcperrors.New(mcperrors.KindTransportUnavailable, err)})
}

func (t *Stdio) Disconnect(_ context.Context) error {
	t.setStatus(mcp.StatusDisconnecting)

	t.mu.Lock()
	cmd := t.cmd
	done := t.done
	if done != nil {
		close(done)
	}
	t.mu.Unlock()

	t.pendingReqs.CancelAll(mcperrors.New(mcperrors.KindCanceled, fmt.Errorf("transport disconnected")))

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		exited := make(chan struct{})
		go func() { _, _ = cmd.Process.Wait(); close(exited) }()
		select {
		case <-exited:
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
		}
	}

	t.setStatus(mcp.StatusDisconnected)
	t.emit(TransportEvent{Kind: EventDisconnect})
	return nil
}

func (t *Stdio) Destroy() {
	_ = t.Disconnect(context.Background())
}

func (t *Stdio) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.timeout = d
}

func (t *Stdio) SetRetryPolicy(p mcp.RetryPolicy) { t.retry = p }

func (t *Stdio) Features() Features {
	return Features{Streaming: false, Notifications: true, Sessions: false, Reconnect: false}
}

func (t *Stdio) Stats() mcp.Stats { return t.stats.snapshot() }

func (t *Stdio) Send(_ context.Context, msg *mcp.RPCMessage) error {
	if !t.IsConnected() {
		return mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("stdio transport %q not connected", t.command))
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocolError, err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()

	t.writeM.Lock()
	_, err = stdin.Write(data)
	t.writeM.Unlock()
	if err != nil {
		return mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}
	t.stats.recordSent(len(data))
	return nil
}

func (t *Stdio) Request(ctx context.Context, method string, params any) (any, error) {
	if !t.IsConnected() {
		return nil, mcperrors.New(mcperrors.KindTransportUnavailable, fmt.Errorf("stdio transport %q not connected", t.command))
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

func (t *Stdio) Notify(ctx context.Context, method string, params any) error {
	return t.Send(ctx, &mcp.RPCMessage{JSONRPC: "2.0", Method: method, Params: params})
}

// stderrSink routes a child process's stderr into the ambient logger at debug
// level instead of letting it pollute the parent process's own stderr.
type stderrSink struct {
	command string
}

func (s stderrSink) Write(p []byte) (int, error) {
	logger.Debugf("stdio transport %s: stderr: %s", s.command, p)
	return len(p), nil
}
