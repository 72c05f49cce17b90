// Package mcp implements the MCP session layer on top of the jsonrpc
// engine and transport abstraction: the initialize handshake and
// version negotiation, the capability registry, the closed set of
// capability operations, change-notification subscriptions, and
// shutdown.
//
// Grounded on mcp/mcp.go's Server.Start handshake sequence in the
// teacher repo (initialize call, notifications/initialized notify,
// immutable post-handshake state), generalized to both sides of the
// handshake, to version negotiation across the three supported
// revisions, and to the explicit state machine this package's Session
// carries instead of the teacher's implicit "did the handshake error?"
// boolean.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/honganh1206/mcpkit/jsonrpc"
	"github.com/honganh1206/mcpkit/transport"
)

// State is a session's position in the spec §3 state machine:
// Created → Initializing → Ready → Closing → Closed, plus terminal
// Failed.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultRequestTimeout is used when a ClientConfig/ServerConfig leaves
// RequestTimeout unset.
const DefaultRequestTimeout = 30 * time.Second

// Session wraps a jsonrpc.Engine and a transport.Transport with the MCP
// lifecycle and capability operations. One Session serves one side
// (client or server) of one connection.
type Session struct {
	engine    *jsonrpc.Engine
	transport transport.Transport
	log       *slog.Logger
	isServer  bool

	mu              sync.Mutex
	state           State
	negotiated      ProtocolVersion
	peerCapabilities Capabilities
	localCapabilities Capabilities
	clientInfo      ClientInfo
	serverInfo      ServerInfo
	minLogLevel     LogLevel
	readyCh         chan struct{}
	readyClosed     bool

	requestTimeout time.Duration
	registry       *registry

	closeOnce sync.Once
}

func newSession(t transport.Transport, logger *slog.Logger, isServer bool) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		transport:      t,
		log:            logger,
		isServer:       isServer,
		state:          StateCreated,
		minLogLevel:    LogInfo,
		readyCh:        make(chan struct{}),
		requestTimeout: DefaultRequestTimeout,
		registry:       newRegistry(),
	}
	s.engine = jsonrpc.New(t, logger)
	s.engine.HandleFunc("ping", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		return map[string]any{}, nil
	})
	return s
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	if next == StateReady && !s.readyClosed {
		s.readyClosed = true
		close(s.readyCh)
	}
	s.mu.Unlock()
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProtocolVersion reports the negotiated revision; only meaningful once
// State() is StateReady or later.
func (s *Session) ProtocolVersion() ProtocolVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

// PeerCapabilities returns the capability set the other side advertised
// at handshake.
func (s *Session) PeerCapabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCapabilities
}

// requireReady enforces spec §8's "NotReady" invariant: no
// non-handshake method may reach the transport before Ready.
func (s *Session) requireReady() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateReady:
		return nil
	case StateFailed:
		return ErrFailed
	case StateClosing, StateClosed:
		return ErrSessionShut
	default:
		return ErrNotReady
	}
}

// WaitReady blocks until the session reaches Ready, or ctx is done, or
// the session fails/closes first.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return s.requireReady()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the engine's reader pump. It must be called once before
// any request can complete (including initialize), typically right
// after construction.
func (s *Session) Run(ctx context.Context) {
	s.engine.Run(ctx)
}

// ---- Client-side handshake ----

// ClientConfig configures the client side of a handshake (spec §6's
// enumerated session configuration, client-facing subset).
type ClientConfig struct {
	ProtocolVersion ProtocolVersion
	ClientInfo      ClientInfo
	Capabilities    Capabilities
	RequestTimeout  time.Duration
}

// NewClientSession builds a client-side Session over t. Call Run, then
// Initialize, before issuing any capability operation.
func NewClientSession(t transport.Transport, logger *slog.Logger) *Session {
	s := newSession(t, logger, false)
	s.registerClientNotificationHandlers()
	return s
}

// Initialize performs the client view of the handshake (spec §4.7):
// send initialize, then notifications/initialized once the server's
// result is accepted. On success the session is Ready.
func (s *Session) Initialize(ctx context.Context, cfg ClientConfig) (*InitializeResult, error) {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = Latest()
	}
	if cfg.RequestTimeout > 0 {
		s.mu.Lock()
		s.requestTimeout = cfg.RequestTimeout
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return nil, localError(KindInvalidState, fmt.Errorf("initialize called in state %s", s.state))
	}
	s.state = StateInitializing
	s.localCapabilities = cfg.Capabilities
	s.clientInfo = cfg.ClientInfo
	timeout := s.requestTimeout
	s.mu.Unlock()

	params := InitializeParams{
		ProtocolVersion: cfg.ProtocolVersion,
		Capabilities:    cfg.Capabilities,
		ClientInfo:      cfg.ClientInfo,
	}
	shaped, err := shapeInitializeParamsOut(params)
	if err != nil {
		s.setState(StateFailed)
		return nil, localError(KindHandshakeFailed, err)
	}

	raw, err := s.engine.SendRequest(ctx, "initialize", json.RawMessage(shaped), timeout)
	if err != nil {
		s.setState(StateFailed)
		if rpcErr, ok := err.(*jsonrpc.Error); ok {
			return nil, wireError(rpcErr)
		}
		return nil, localError(KindHandshakeFailed, err)
	}

	result, err := parseInitializeResultIn(raw)
	if err != nil {
		s.setState(StateFailed)
		return nil, localError(KindHandshakeFailed, err)
	}
	if !isSupported(result.ProtocolVersion) {
		s.setState(StateFailed)
		return nil, localError(KindHandshakeFailed, fmt.Errorf("server negotiated unsupported version %q", result.ProtocolVersion))
	}

	s.mu.Lock()
	s.negotiated = result.ProtocolVersion
	s.peerCapabilities = result.Capabilities
	s.serverInfo = result.ServerInfo
	s.mu.Unlock()
	s.announceProtocolVersion(result.ProtocolVersion)

	if err := s.engine.SendNotification(ctx, "notifications/initialized", nil); err != nil {
		s.setState(StateFailed)
		return nil, localError(KindHandshakeFailed, err)
	}

	s.setState(StateReady)
	return &result, nil
}

// protocolVersionSetter is implemented by transports whose wire framing
// depends on the negotiated revision (httptransport's ClientTransport
// needs it to start sending MCP-Protocol-Version per spec §4.5; stdio
// and in-memory have no such header and don't implement it).
type protocolVersionSetter interface {
	SetProtocolVersion(v string)
}

// protocolVersionRequirer is implemented by transports that enforce the
// header on inbound requests once it applies (httptransport's
// ServerTransport).
type protocolVersionRequirer interface {
	RequireProtocolVersion(v string)
}

func (s *Session) announceProtocolVersion(v ProtocolVersion) {
	if setter, ok := s.transport.(protocolVersionSetter); ok && requiresProtocolHeader(v) {
		setter.SetProtocolVersion(string(v))
	}
	if requirer, ok := s.transport.(protocolVersionRequirer); ok && requiresProtocolHeader(v) {
		requirer.RequireProtocolVersion(string(v))
	}
}

func (s *Session) registerClientNotificationHandlers() {
	forward := func(kind changeKind) jsonrpc.Handler {
		return func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
			var payload any
			if len(params) > 0 {
				_ = json.Unmarshal(params, &payload)
			}
			s.registry.Publish(kind, payload)
			return nil, nil
		}
	}
	s.engine.HandleFunc("notifications/tools/list_changed", forward(changeToolsListChanged))
	s.engine.HandleFunc("notifications/prompts/list_changed", forward(changePromptsListChanged))
	s.engine.HandleFunc("notifications/resources/list_changed", forward(changeResourcesListChanged))
	s.engine.HandleFunc("notifications/message", forward(changeLoggingMessage))

	s.engine.HandleFunc("notifications/resources/updated", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p ResourceUpdatedParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, nil
		}
		s.registry.Publish(changeResourceUpdated(p.URI), p)
		return nil, nil
	})
}

// OnToolsListChanged registers fn to fire whenever the server announces
// its tool registry changed.
func (s *Session) OnToolsListChanged(fn func()) {
	s.registry.Subscribe(changeToolsListChanged, func(any) { fn() })
}

// OnPromptsListChanged registers fn to fire whenever the server
// announces its prompt registry changed.
func (s *Session) OnPromptsListChanged(fn func()) {
	s.registry.Subscribe(changePromptsListChanged, func(any) { fn() })
}

// OnResourcesListChanged registers fn to fire whenever the server
// announces its resource registry changed.
func (s *Session) OnResourcesListChanged(fn func()) {
	s.registry.Subscribe(changeResourcesListChanged, func(any) { fn() })
}

// OnResourceUpdated registers fn to fire when the server reports uri
// was updated. The caller is still responsible for calling
// SubscribeResource first so the server actually emits the notification.
func (s *Session) OnResourceUpdated(uri string, fn func()) {
	s.registry.Subscribe(changeResourceUpdated(uri), func(any) { fn() })
}

// OnLogMessage registers fn to fire for every notifications/message the
// server emits at or above its configured level.
func (s *Session) OnLogMessage(fn func(LoggingMessageParams)) {
	s.registry.Subscribe(changeLoggingMessage, func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		var p LoggingMessageParams
		if json.Unmarshal(b, &p) == nil {
			fn(p)
		}
	})
}

// ---- Client-side capability operations ----

func (s *Session) call(ctx context.Context, method string, params any, out any) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	s.mu.Lock()
	timeout := s.requestTimeout
	s.mu.Unlock()

	raw, err := s.engine.SendRequest(ctx, method, params, timeout)
	if err != nil {
		if rpcErr, ok := err.(*jsonrpc.Error); ok {
			return wireError(rpcErr)
		}
		return localError(KindTransportUnavailable, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return localError(KindUnknown, err)
	}
	return nil
}

// ListTools calls tools/list.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	var result ToolsListResult
	if err := s.call(ctx, "tools/list", ToolsListParams{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool calls tools/call for name with arguments.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]any) (ToolCallResult, error) {
	var result ToolCallResult
	err := s.call(ctx, "tools/call", ToolsCallParams{Name: name, Arguments: arguments}, &result)
	return result, err
}

// ListPrompts calls prompts/list.
func (s *Session) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var result PromptsListResult
	if err := s.call(ctx, "prompts/list", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// GetPrompt calls prompts/get for name with the given arguments.
func (s *Session) GetPrompt(ctx context.Context, name string, arguments map[string]string) (PromptsGetResult, error) {
	var result PromptsGetResult
	err := s.call(ctx, "prompts/get", PromptsGetParams{Name: name, Arguments: arguments}, &result)
	return result, err
}

// ListResources calls resources/list.
func (s *Session) ListResources(ctx context.Context) ([]Resource, error) {
	var result ResourcesListResult
	if err := s.call(ctx, "resources/list", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ReadResource calls resources/read for uri.
func (s *Session) ReadResource(ctx context.Context, uri string) (ResourcesReadResult, error) {
	var result ResourcesReadResult
	err := s.call(ctx, "resources/read", ResourcesReadParams{URI: uri}, &result)
	return result, err
}

// SubscribeResource calls resources/subscribe for uri. Use
// OnResourceUpdated to register the local callback invoked for
// subsequent updates.
func (s *Session) SubscribeResource(ctx context.Context, uri string) error {
	return s.call(ctx, "resources/subscribe", ResourcesSubscribeParams{URI: uri}, nil)
}

// UnsubscribeResource calls resources/unsubscribe for uri.
func (s *Session) UnsubscribeResource(ctx context.Context, uri string) error {
	if err := s.call(ctx, "resources/unsubscribe", ResourcesSubscribeParams{URI: uri}, nil); err != nil {
		return err
	}
	s.registry.Unsubscribe(changeResourceUpdated(uri))
	return nil
}

// SetLogLevel calls logging/setLevel.
func (s *Session) SetLogLevel(ctx context.Context, level LogLevel) error {
	return s.call(ctx, "logging/setLevel", LoggingSetLevelParams{Level: level}, nil)
}

// Ping calls the no-op ping method, useful as a liveness check.
func (s *Session) Ping(ctx context.Context) error {
	return s.call(ctx, "ping", struct{}{}, nil)
}

// ToolsListParams is tools/list's request parameters. ListTools sends
// it with an empty cursor; prompts/list and resources/list send empty
// params and have no cursor type.
type ToolsListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ---- Shutdown ----

// Close transitions the session through Closing to Closed, failing any
// pending requests and releasing the underlying transport. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.engine.Close()
		err = s.transport.Close()
		s.setState(StateClosed)
	})
	return err
}
