// Data model types for the MCP session layer: client/server identity,
// capability declarations, the initialize handshake payloads, and the
// per-capability request/result shapes (spec §3). These are the
// version-agnostic, "latest shape" Go representations; shaping.go is
// the only place that translates them to and from a specific
// negotiated ProtocolVersion's wire bytes.
package mcp

import "encoding/json"

// ClientInfo identifies the connecting client, exchanged during
// initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// ServerInfo identifies the serving peer, exchanged during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// Capabilities is the negotiated set of optional features either side
// declares support for. A nil field means "not supported", matching the
// spec's presence-means-supported capability object convention.
type Capabilities struct {
	Tools       *ToolsCapability      `json:"tools,omitempty"`
	Prompts     *PromptsCapability    `json:"prompts,omitempty"`
	Resources   *ResourcesCapability  `json:"resources,omitempty"`
	Logging     *LoggingCapability    `json:"logging,omitempty"`
	Completion  *CompletionCapability `json:"completion,omitempty"`
	Roots       *RootsCapability      `json:"roots,omitempty"`
	Sampling    *SamplingCapability   `json:"sampling,omitempty"`
}

// ToolsCapability declares tool support and whether the list can change
// after initialize.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability declares prompt support and list-change behavior.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability declares resource support, subscription support,
// and list-change behavior.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapability declares support for logging/setLevel and
// notifications/message. It carries no options of its own; presence is
// the whole signal.
type LoggingCapability struct{}

// CompletionCapability declares support for completion/complete. No
// options of its own.
type CompletionCapability struct{}

// RootsCapability (client-side) declares support for the roots list and
// whether it can change.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability (client-side) declares support for sampling
// call-backs from the server. No options of its own.
type SamplingCapability struct{}

// InitializeParams is the client's initialize request payload.
type InitializeParams struct {
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// InitializeResult is the server's initialize response payload.
type InitializeResult struct {
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// ToolAnnotations carries free-form, non-normative hints about a tool
// (title, destructive/read-only/idempotent/open-world markers); spec §3
// leaves its exact key set to the tool author.
type ToolAnnotations map[string]any

// ToolHandler implements a tool's behavior given the call's arguments.
// A non-nil error becomes a {isError:true} ToolCallResult, never a
// JSON-RPC error (spec §4.7).
type ToolHandler func(cc *CallContext, arguments map[string]any) ([]ContentPart, error)

// Tool is a registered tool: its wire-facing declaration plus the
// handler that implements it. Call is excluded from the wire
// representation; tools/list only ever exposes the declaration.
type Tool struct {
	Name          string          `json:"name"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	InputSchema   json.RawMessage `json:"inputSchema"`
	OutputSchema  json.RawMessage `json:"outputSchema,omitempty"`
	Annotations   ToolAnnotations `json:"annotations,omitempty"`
	Call          ToolHandler     `json:"-"`
}

// ContentPart is one piece of a tool/prompt result: text, or binary data
// (image/audio, base64-encoded in Data). It has no field for a resource
// URI or embedded resource.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCallResult is tools/call's response payload.
type ToolCallResult struct {
	Content           []ContentPart `json:"content"`
	IsError           bool          `json:"isError,omitempty"`
	StructuredContent any           `json:"structuredContent,omitempty"`
}

// PromptArgument describes one named argument a Prompt's Render accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one message in a rendered prompt's conversation.
type PromptMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// Prompt is a registered prompt template: its wire-facing declaration
// plus the render function that expands it given arguments.
type Prompt struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	Render      func(args map[string]string) ([]PromptMessage, error) `json:"-"`
}

// Resource is a registered resource: its wire-facing declaration plus
// the read function that produces its content.
type Resource struct {
	Name        string                        `json:"name"`
	URI         string                        `json:"uri"`
	Description string                        `json:"description,omitempty"`
	MimeType    string                        `json:"mimeType,omitempty"`
	Read        func() ([]ContentPart, error) `json:"-"`
}

// ToolsListResult is tools/list's response payload.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolsCallParams is tools/call's request payload.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// PromptsListResult is prompts/list's response payload.
type PromptsListResult struct {
	Prompts []Prompt `json:"prompts"`
}

// PromptsGetParams is prompts/get's request payload.
type PromptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptsGetResult is prompts/get's response payload.
type PromptsGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ResourcesListResult is resources/list's response payload.
type ResourcesListResult struct {
	Resources []Resource `json:"resources"`
}

// ResourcesReadParams is resources/read's request payload.
type ResourcesReadParams struct {
	URI string `json:"uri"`
}

// ResourcesReadResult is resources/read's response payload.
type ResourcesReadResult struct {
	Contents []ContentPart `json:"contents"`
}

// ResourcesSubscribeParams is shared by resources/subscribe and
// resources/unsubscribe's request payloads.
type ResourcesSubscribeParams struct {
	URI string `json:"uri"`
}

// ResourceUpdatedParams is notifications/resources/updated's payload.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// LogLevel is one of the RFC 5424 severity names spec §4.7's
// logging/setLevel and notifications/message use.
type LogLevel string

const (
	LogDebug     LogLevel = "debug"
	LogInfo      LogLevel = "info"
	LogNotice    LogLevel = "notice"
	LogWarning   LogLevel = "warning"
	LogError     LogLevel = "error"
	LogCritical  LogLevel = "critical"
	LogAlert     LogLevel = "alert"
	LogEmergency LogLevel = "emergency"
)

var logLevelRank = map[LogLevel]int{
	LogDebug:     0,
	LogInfo:      1,
	LogNotice:    2,
	LogWarning:   3,
	LogError:     4,
	LogCritical:  5,
	LogAlert:     6,
	LogEmergency: 7,
}

// allows reports whether a message at msg's severity meets or exceeds
// min, i.e. whether it should be emitted.
func (min LogLevel) allows(msg LogLevel) bool {
	minRank, ok := logLevelRank[min]
	if !ok {
		minRank = logLevelRank[LogInfo]
	}
	msgRank, ok := logLevelRank[msg]
	if !ok {
		return true
	}
	return msgRank >= minRank
}

// LoggingSetLevelParams is logging/setLevel's request payload.
type LoggingSetLevelParams struct {
	Level LogLevel `json:"level"`
}

// LoggingMessageParams is notifications/message's payload.
type LoggingMessageParams struct {
	Level  LogLevel `json:"level"`
	Logger string   `json:"logger,omitempty"`
	Data   any      `json:"data"`
}

// CallContext carries per-call context visible to a ToolHandler; it
// exists mainly so a tool can adapt its output to what the negotiated
// revision supports without the session package reaching into the
// handler's closure.
type CallContext struct {
	ProtocolVersion ProtocolVersion
}
