package mcp

import (
	"fmt"

	"github.com/honganh1206/mcpkit/jsonrpc"
)

// Kind is a local-only failure classification (spec §7): never placed
// on the wire, distinct from the jsonrpc.Error a peer's response may
// carry.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotReady
	KindFailed
	KindTransportClosed
	KindTransportUnavailable
	KindTimeout
	KindHandshakeFailed
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNotReady:
		return "not ready"
	case KindFailed:
		return "session failed"
	case KindTransportClosed:
		return "transport closed"
	case KindTransportUnavailable:
		return "transport unavailable"
	case KindTimeout:
		return "timeout"
	case KindHandshakeFailed:
		return "handshake failed"
	case KindInvalidState:
		return "invalid state"
	default:
		return "unknown"
	}
}

// Error is the single exported error type session operations return: a
// local Kind with an optional message, or a wrapped jsonrpc.Error
// unchanged from the wire, the way server/errors.go's HTTPError wraps
// an inner cause in the teacher repo.
type Error struct {
	Kind    Kind
	Message string
	Wire    *jsonrpc.Error
	Cause   error
}

func (e *Error) Error() string {
	if e.Wire != nil {
		return fmt.Sprintf("mcp: %s", e.Wire.Error())
	}
	if e.Cause != nil {
		return fmt.Sprintf("mcp: %s: %v", e.Kind, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("mcp: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("mcp: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, mcp.ErrNotReady) work against a *Error carrying
// the matching Kind, without requiring every call site to construct a
// sentinel *Error by hand.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Wire == nil
}

// Sentinel *Error values for errors.Is comparisons.
var (
	ErrNotReady    = &Error{Kind: KindNotReady, Message: "session is not ready"}
	ErrFailed      = &Error{Kind: KindFailed, Message: "session has failed"}
	ErrSessionShut = &Error{Kind: KindTransportClosed, Message: "session is closed"}
)

func wireError(err *jsonrpc.Error) *Error {
	return &Error{Kind: KindUnknown, Wire: err}
}

func localError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}
