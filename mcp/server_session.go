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

// ServerConfig configures the server side of a handshake.
type ServerConfig struct {
	ServerInfo     ServerInfo
	Capabilities   Capabilities
	Instructions   string
	RequestTimeout time.Duration
}

// NewServerSession builds a server-side Session over t, with method
// handlers for the full closed set of MCP capability operations (spec
// §6) wired onto the underlying engine. Call Run to start serving.
func NewServerSession(t transport.Transport, cfg ServerConfig, logger *slog.Logger) *Session {
	s := newSession(t, logger, true)
	s.serverInfo = cfg.ServerInfo
	s.localCapabilities = cfg.Capabilities
	if cfg.RequestTimeout > 0 {
		s.requestTimeout = cfg.RequestTimeout
	}

	sub := &subscriptionState{uris: make(map[string]bool)}
	s.registerServerHandlers(cfg, sub)
	return s
}

// subscriptionState records which resource URIs this connected peer has
// subscribed to. Nothing reads it back: delivery is governed by the
// registry's subscriber lists, which resources/unsubscribe clears.
type subscriptionState struct {
	mu   sync.Mutex
	uris map[string]bool
}

func (s *subscriptionState) add(uri string)    { s.mu.Lock(); s.uris[uri] = true; s.mu.Unlock() }
func (s *subscriptionState) remove(uri string) { s.mu.Lock(); delete(s.uris, uri); s.mu.Unlock() }

func (s *Session) registerServerHandlers(cfg ServerConfig, sub *subscriptionState) {
	s.engine.HandleFunc("initialize", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		reqParams, err := parseInitializeParamsIn(params)
		if err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}

		version, ok := negotiate(reqParams.ProtocolVersion)
		if !ok {
			s.setState(StateFailed)
			return nil, jsonrpc.InvalidParams(fmt.Sprintf("unsupported protocol version %q", reqParams.ProtocolVersion))
		}

		s.mu.Lock()
		s.state = StateInitializing
		s.negotiated = version
		s.peerCapabilities = reqParams.Capabilities
		s.clientInfo = reqParams.ClientInfo
		s.mu.Unlock()
		s.announceProtocolVersion(version)

		result := InitializeResult{
			ProtocolVersion: version,
			Capabilities:    cfg.Capabilities,
			ServerInfo:      cfg.ServerInfo,
			Instructions:    cfg.Instructions,
		}
		shaped, err := shapeInitializeResultOut(result)
		if err != nil {
			return nil, jsonrpc.InternalError("failed to encode initialize result")
		}
		return json.RawMessage(shaped), nil
	})

	s.engine.HandleFunc("notifications/initialized", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		s.setState(StateReady)
		return nil, nil
	})

	s.engine.HandleFunc("tools/list", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		return ToolsListResult{Tools: s.registry.Tools()}, nil
	})

	s.engine.HandleFunc("tools/call", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p ToolsCallParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		tool, ok := s.registry.Tool(p.Name)
		if !ok || tool.Call == nil {
			return nil, jsonrpc.InvalidParams(fmt.Sprintf("unknown tool %q", p.Name))
		}

		cc := &CallContext{ProtocolVersion: s.ProtocolVersion()}
		content, callErr := tool.Call(cc, p.Arguments)
		result := ToolCallResult{Content: content}
		if callErr != nil {
			// spec §4.7/§7: a tool failure is a result with
			// isError:true, never a JSON-RPC error.
			result = ToolCallResult{
				Content: []ContentPart{{Type: "text", Text: callErr.Error()}},
				IsError: true,
			}
		}
		shaped, err := shapeToolCallResultOut(result, s.ProtocolVersion())
		if err != nil {
			return nil, jsonrpc.InternalError("failed to encode tool result")
		}
		return json.RawMessage(shaped), nil
	})

	s.engine.HandleFunc("prompts/list", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		return PromptsListResult{Prompts: s.registry.Prompts()}, nil
	})

	s.engine.HandleFunc("prompts/get", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p PromptsGetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		prompt, ok := s.registry.Prompt(p.Name)
		if !ok || prompt.Render == nil {
			return nil, jsonrpc.InvalidParams(fmt.Sprintf("unknown prompt %q", p.Name))
		}
		// Open question (spec §9): missing required arguments are
		// substituted permissively rather than rejected with -32602,
		// matching the teacher's own undefended map access pattern.
		messages, err := prompt.Render(p.Arguments)
		if err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		return PromptsGetResult{Description: prompt.Description, Messages: messages}, nil
	})

	s.engine.HandleFunc("resources/list", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		return ResourcesListResult{Resources: s.registry.Resources()}, nil
	})

	s.engine.HandleFunc("resources/read", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p ResourcesReadParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		res, ok := s.registry.Resource(p.URI)
		if !ok || res.Read == nil {
			return nil, jsonrpc.InvalidParams(fmt.Sprintf("unknown resource %q", p.URI))
		}
		contents, err := res.Read()
		if err != nil {
			return nil, jsonrpc.InternalError("failed to read resource")
		}
		return ResourcesReadResult{Contents: contents}, nil
	})

	s.engine.HandleFunc("resources/subscribe", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p ResourcesSubscribeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		if _, ok := s.registry.Resource(p.URI); !ok {
			return nil, jsonrpc.InvalidParams(fmt.Sprintf("unknown resource %q", p.URI))
		}
		sub.add(p.URI)
		kind := changeResourceUpdated(p.URI)
		s.registry.Subscribe(kind, func(payload any) {
			if err := s.engine.SendNotification(context.Background(), "notifications/resources/updated", payload); err != nil {
				s.log.Warn("mcp: failed to deliver resources/updated", "uri", p.URI, "err", err)
			}
		})
		return map[string]any{}, nil
	})

	s.engine.HandleFunc("resources/unsubscribe", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p ResourcesSubscribeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		sub.remove(p.URI)
		s.registry.Unsubscribe(changeResourceUpdated(p.URI))
		return map[string]any{}, nil
	})

	s.engine.HandleFunc("logging/setLevel", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p LoggingSetLevelParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.InvalidParams(err.Error())
		}
		s.mu.Lock()
		s.minLogLevel = p.Level
		s.mu.Unlock()
		return map[string]any{}, nil
	})
}

// RegisterTool adds or replaces a tool in this server's registry,
// announcing notifications/tools/list_changed if the peer negotiated
// that option and the session is Ready.
func (s *Session) RegisterTool(t Tool) {
	s.registry.RegisterTool(t, s.notifyIfNegotiated(changeToolsListChanged, func(c Capabilities) bool {
		return c.Tools != nil && c.Tools.ListChanged
	}))
}

// RegisterPrompt adds or replaces a prompt in this server's registry,
// announcing notifications/prompts/list_changed if negotiated.
func (s *Session) RegisterPrompt(p Prompt) {
	s.registry.RegisterPrompt(p, s.notifyIfNegotiated(changePromptsListChanged, func(c Capabilities) bool {
		return c.Prompts != nil && c.Prompts.ListChanged
	}))
}

// RegisterResource adds or replaces a resource in this server's
// registry, announcing notifications/resources/list_changed if
// negotiated.
func (s *Session) RegisterResource(r Resource) {
	s.registry.RegisterResource(r, s.notifyIfNegotiated(changeResourcesListChanged, func(c Capabilities) bool {
		return c.Resources != nil && c.Resources.ListChanged
	}))
}

func (s *Session) notifyIfNegotiated(kind changeKind, allowed func(Capabilities) bool) func(changeKind, any) {
	return func(_ changeKind, _ any) {
		if s.State() != StateReady {
			return
		}
		if !allowed(s.PeerCapabilities()) {
			return
		}
		if err := s.engine.SendNotification(context.Background(), string(kind), nil); err != nil {
			s.log.Warn("mcp: failed to deliver change notification", "kind", kind, "err", err)
		}
	}
}

// NotifyResourceUpdated emits notifications/resources/updated for uri
// to every subscriber (per session, at most one delivery surface per
// subscribe call); a URI with no subscribers delivers nothing (spec §8:
// "Resource update for an unsubscribed URI → no delivery").
func (s *Session) NotifyResourceUpdated(uri string) {
	s.registry.Publish(changeResourceUpdated(uri), ResourceUpdatedParams{URI: uri})
}

// LogMessage emits notifications/message at level if it meets the
// peer-configured minimum (spec §4.7: "subsequent notifications/message
// below the level MUST be filtered at the server before emission").
func (s *Session) LogMessage(level LogLevel, logger string, data any) {
	s.mu.Lock()
	min := s.minLogLevel
	s.mu.Unlock()
	if !min.allows(level) {
		return
	}
	params := LoggingMessageParams{Level: level, Logger: logger, Data: data}
	if err := s.engine.SendNotification(context.Background(), "notifications/message", params); err != nil {
		s.log.Warn("mcp: failed to deliver log message", "err", err)
	}
}
