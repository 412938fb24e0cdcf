// Package mcp holds the data model shared by every component of the MCP client
// runtime: server configuration, tool catalogs, call requests/responses, the
// JSON-RPC envelope, transport status, and lifecycle events.
package mcp

import (
	"fmt"
	"time"
)

// ProtocolVersion is the single MCP wire protocol version this runtime speaks.
// Kept as one constant per the source's own hard-coded version string.
const ProtocolVersion = "2025-03-26"

// Collection groups a ServerConfig for UI display and write-permission scope.
type Collection string

const (
	CollectionSystem  Collection = "system"
	CollectionProject Collection = "project"
	CollectionUser    Collection = "user"
)

// Source records where a ServerConfig originated.
type Source string

const (
	SourceUser     Source = "user"
	SourceProject  Source = "project"
	SourceSystem   Source = "system"
	SourceImported Source = "imported"
)

// TransportType selects the wire mechanism a ServerConfig connects over.
type TransportType string

const (
	TransportStdio         TransportType = "stdio"
	TransportWebSocket     TransportType = "websocket"
	TransportStreamableHTTP TransportType = "streamableHttp"
	TransportSSE           TransportType = "sse"
	TransportInMemory      TransportType = "inMemory"
)

// ExecutionMode hints at how a server is hosted.
type ExecutionMode string

const (
	ExecutionInprocess ExecutionMode = "inprocess"
	ExecutionSandbox   ExecutionMode = "sandbox"
	ExecutionStandard  ExecutionMode = "standard"
)

// Status is the lifecycle state of a server's live connection.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusError         Status = "error"
)

// AuthType discriminates the ServerConfig.Auth union.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthOAuth2 AuthType = "oauth2"
	AuthCustom AuthType = "custom"
)

// RetryPolicy configures ConnectWithRetry backoff for one server.
type RetryPolicy struct {
	MaxRetries     int     `json:"maxRetries"`
	InitialDelayMs int     `json:"initialDelayMs"`
	MaxDelayMs     int     `json:"maxDelayMs"`
	BackoffFactor  float64 `json:"backoffFactor"`
}

// DefaultRetryPolicy mirrors the orchestrator's documented default of 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialDelayMs: 2000,
		MaxDelayMs:     30000,
		BackoffFactor:  2,
	}
}

// OAuth2Config is the oauth2 arm of ServerConfig.Auth, shaped directly after
// golang.org/x/oauth2.Config so a token-acquisition implementation is a matter
// of constructing an oauth2.Config from it, not redesigning the type.
type OAuth2Config struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	AuthURL      string   `json:"authUrl"`
	TokenURL     string   `json:"tokenUrl"`
	Scope        []string `json:"scope,omitempty"`
	RedirectURI  string   `json:"redirectUri,omitempty"`
}

// Auth is the discriminated union of authentication schemes a server may require.
type Auth struct {
	Type    AuthType          `json:"type"`
	Token   string            `json:"token,omitempty"`   // bearer
	OAuth2  *OAuth2Config     `json:"oauth2,omitempty"`  // oauth2
	Headers map[string]string `json:"headers,omitempty"` // custom
}

// Runtime holds fields that are never persisted to disk; they describe the
// live state of a server's connection and are rebuilt on every process start.
type Runtime struct {
	Status         Status     `json:"status"`
	PID            *int       `json:"pid,omitempty"`
	StartTimeAt    *time.Time `json:"startTimeAt,omitempty"`
	ToolCount      *int       `json:"toolCount,omitempty"`
	ErrorCount     int        `json:"errorCount"`
	LastError      string     `json:"lastError,omitempty"`
}

// ServerConfig is the durable definition of one MCP server.
type ServerConfig struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	Collection Collection `json:"collection"`
	Source     Source     `json:"source"`
	Priority   *int       `json:"priority,omitempty"`

	Type TransportType `json:"type"`

	// stdio
	Command          string            `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Env              map[string]string `json:"env,omitempty"`

	// network (websocket, streamableHttp, sse)
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// inMemory
	Channel    string `json:"channel,omitempty"`
	SelfHandle bool   `json:"selfHandle,omitempty"`

	IsEnabled     bool        `json:"isEnabled"`
	AutoStart     bool        `json:"autoStart"`
	AutoReconnect bool        `json:"autoReconnect"`
	TimeoutMs     int         `json:"timeoutMs"`
	Retry         RetryPolicy `json:"retry"`
	MaxConcurrent int         `json:"maxConcurrent,omitempty"`

	Auth Auth `json:"auth"`

	// Execution is a hint; when empty, InferExecutionMode fills it in.
	Execution ExecutionMode `json:"execution,omitempty"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`

	// Runtime is never marshaled to the on-disk config file (see §6); it is
	// stripped before Export and never read back by Import/Add.
	Runtime Runtime `json:"-"`
}

// Clone returns a deep-enough copy for safe handoff across goroutine/ownership
// boundaries (slices and maps are copied; nested pointers are copied by value).
func (c *ServerConfig) Clone() *ServerConfig {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Args = append([]string(nil), c.Args...)
	cp.Env = cloneStringMap(c.Env)
	cp.Headers = cloneStringMap(c.Headers)
	if c.Auth.Headers != nil {
		cp.Auth.Headers = cloneStringMap(c.Auth.Headers)
	}
	if c.Auth.OAuth2 != nil {
		o := *c.Auth.OAuth2
		o.Scope = append([]string(nil), c.Auth.OAuth2.Scope...)
		cp.Auth.OAuth2 = &o
	}
	if c.Priority != nil {
		p := *c.Priority
		cp.Priority = &p
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Tool is a protocol-visible callable exposed by a connected server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	ServerID    string         `json:"serverId"`
	ServerName  string         `json:"serverName"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	UsageCount  int            `json:"usageCount"`
	LastUsedAt  *time.Time     `json:"lastUsedAt,omitempty"`
}

// RecordUsage is the only mutator of a Tool's lifecycle fields (§3).
func (t *Tool) RecordUsage(at time.Time) {
	t.UsageCount++
	t.LastUsedAt = &at
}

// ToolCallRequest is a caller's request to invoke one tool on one server.
type ToolCallRequest struct {
	ServerID  string         `json:"serverId"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CallID    string         `json:"callId,omitempty"`
}

// ToolCallResponse is the outcome of a ToolCallRequest. Success and failure are
// both returned by value — CallTool never returns a bare error to its caller.
type ToolCallResponse struct {
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	CallID     string `json:"callId,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message) }

// RPCMessage is the wire envelope described in spec.md §3. Request iff Method
// is set and ID is non-nil; notification iff Method is set and ID is nil;
// response otherwise.
type RPCMessage struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Method  string    `json:"method,omitempty"`
	Params  any       `json:"params,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// IsRequest reports whether m is a request (method set, id set).
func (m *RPCMessage) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether m is a notification (method set, no id).
func (m *RPCMessage) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether m is neither a request nor a notification.
func (m *RPCMessage) IsResponse() bool { return m.Method == "" }

// Stats is a point-in-time snapshot of a transport's traffic counters.
// Updated with relaxed atomicity: monotonicity within one connection lifetime
// is the only guarantee (spec.md §5).
type Stats struct {
	MessagesSent     int64      `json:"messagesSent"`
	MessagesReceived int64      `json:"messagesReceived"`
	BytesIn          int64      `json:"bytesIn"`
	BytesOut         int64      `json:"bytesOut"`
	ConnectedAt      *time.Time `json:"connectedAt,omitempty"`
	LastMessageAt    *time.Time `json:"lastMessageAt,omitempty"`
	Errors           int64      `json:"errors"`
}

// EventType enumerates the lifecycle events the EventBus fans out.
type EventType string

const (
	EventServerConnected    EventType = "serverConnected"
	EventServerDisconnected EventType = "serverDisconnected"
	EventServerError        EventType = "serverError"
	EventServerMessage      EventType = "serverMessage"
	EventToolDiscovered     EventType = "toolDiscovered"
	EventToolCalled         EventType = "toolCalled"
	EventToolError          EventType = "toolError"
	EventConfigAdded        EventType = "configAdded"
	EventConfigUpdated      EventType = "configUpdated"
	EventConfigRemoved      EventType = "configRemoved"
)

// Event is one item published on the EventBus.
type Event struct {
	Type      EventType `json:"type"`
	ServerID  string    `json:"serverId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}
