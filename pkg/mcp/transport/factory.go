package transport

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deechat/mcp-core/pkg/mcp"
	"github.com/deechat/mcp-core/pkg/mcp/mcperrors"
)

// Validator checks variant-specific ServerConfig fields beyond the generic
// validation every config goes through (spec.md §4.2 step b).
type Validator func(cfg *mcp.ServerConfig) error

// Builder constructs a Transport for a validated ServerConfig (spec.md §4.2
// step c).
type Builder func(cfg *mcp.ServerConfig) (Transport, error)

type registration struct {
	validate    Validator
	build       Builder
	description string
}

// Factory is the registry of {validator, builder, description} per transport
// type (spec.md §4.2): "the only place aware of all variants."
type Factory struct {
	variants map[mcp.TransportType]registration
}

// NewFactory builds a Factory pre-registered with all five wire variants.
func NewFactory() *Factory {
	f := &Factory{variants: make(map[mcp.TransportType]registration)}
	f.Register(mcp.TransportStdio, validateStdio, buildStdio, "spawn a child process, frame JSON over stdio")
	f.Register(mcp.TransportWebSocket, validateNetwork, buildWebSocket, "bidirectional websocket")
	f.Register(mcp.TransportStreamableHTTP, validateNetwork, buildStreamableHTTP, "HTTP POST + companion SSE GET")
	f.Register(mcp.TransportSSE, validateNetwork, buildSSE, "deprecated: SSE GET + HTTP POST")
	f.Register(mcp.TransportInMemory, validateInMemory, buildInMemory, "in-process loopback broker")
	return f
}

// Register adds or replaces a variant. Exposed so tests can stub a variant.
func (f *Factory) Register(t mcp.TransportType, v Validator, b Builder, description string) {
	f.variants[t] = registration{validate: v, build: b, description: description}
}

// Create validates cfg generically and per-variant, builds the Transport, and
// applies the common config (timeout, retry policy) spec.md §4.2 describes.
func (f *Factory) Create(cfg *mcp.ServerConfig) (Transport, error) {
	if err := validateGeneric(cfg); err != nil {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, err)
	}

	reg, ok := f.variants[cfg.Type]
	if !ok {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid,
			fmt.Errorf("%w: %q", mcperrors.ErrUnsupportedTransport, cfg.Type))
	}

	if err := reg.validate(cfg); err != nil {
		return nil, mcperrors.New(mcperrors.KindConfigInvalid, err)
	}

	tr, err := reg.build(cfg)
	if err != nil {
		return nil, mcperrors.New(mcperrors.KindTransportUnavailable, err)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	tr.SetTimeout(timeout)
	tr.SetRetryPolicy(cfg.Retry)
	tr.On(EventError, func(ev TransportEvent) {
		// Bridge transport errors into the ambient logger; the Client/
		// Supervisor layer wraps these with server-id context before
		// publishing them to the EventBus.
		logErrorBridge(cfg.ID, ev.Err)
	})
	tr.On(EventStatusChange, func(ev TransportEvent) {
		logStatusBridge(cfg.ID, ev.Status)
	})

	return tr, nil
}

func validateGeneric(cfg *mcp.ServerConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("id must not be empty")
	}
	if cfg.TimeoutMs != 0 && cfg.TimeoutMs < 1000 {
		return fmt.Errorf("timeoutMs must be >= 1000, got %d", cfg.TimeoutMs)
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.maxRetries must be >= 0, got %d", cfg.Retry.MaxRetries)
	}
	return nil
}

func validateStdio(cfg *mcp.ServerConfig) error {
	if cfg.Command == "" {
		return fmt.Errorf("stdio transport requires a non-empty command")
	}
	return nil
}

func validateNetwork(cfg *mcp.ServerConfig) error {
	u, err := url.Parse(cfg.URL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("transport %q requires a well-formed absolute url, got %q", cfg.Type, cfg.URL)
	}
	return nil
}

func validateInMemory(cfg *mcp.ServerConfig) error {
	if cfg.Channel == "" {
		return fmt.Errorf("inMemory transport requires a non-empty channel")
	}
	return nil
}

// DetectProtocolType infers a TransportType from a bare URL, per spec.md
// §4.2 and the literal scenario in §8 ("Auto-detect protocol"). Returns ""
// for a scheme it doesn't recognize.
func DetectProtocolType(rawURL string) mcp.TransportType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return mcp.TransportWebSocket
	case "http", "https":
		if strings.HasSuffix(u.Path, "/sse") || strings.HasSuffix(u.Path, "/events") {
			return mcp.TransportSSE
		}
		return mcp.TransportStreamableHTTP
	default:
		return ""
	}
}
