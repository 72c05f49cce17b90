// Package transport defines the framing-agnostic abstraction the MCP
// engine sends and receives JSON-RPC frames through, and the shared
// errors every concrete transport (stdio, HTTP, in-memory) surfaces on
// failure. Transports move bytes; they never interpret MCP methods.
package transport

import (
	"context"
	"errors"
)

// ErrTransportUnavailable is returned when a send is attempted on a
// transport that cannot currently accept outbound frames (e.g. the
// child process never started, or the HTTP client has no session yet).
var ErrTransportUnavailable = errors.New("transport: unavailable")

// ErrTransportClosed is returned by Send after Close, and is the error
// every pending request is completed with when the transport dies.
var ErrTransportClosed = errors.New("transport: closed")

// Frame is a single inbound framed message, or a terminal failure. Once
// a Frame with a non-nil Err is delivered the producing transport is
// considered dead; no further Frames follow it on the same channel.
type Frame struct {
	Data []byte
	Err  error
}

// Transport is the minimal capability set every concrete transport
// implements. SendRequest and SendNotification are distinguished only
// for the caller's clarity about delivery expectations (a request frame
// is paired with a future reply by the engine, a notification is not);
// at the transport level both are a single at-most-once framed write.
type Transport interface {
	// SendRequest ships a framed outbound request. It completes once the
	// transport has accepted the bytes for delivery, not once a peer has
	// acted on them.
	SendRequest(ctx context.Context, frame []byte) error
	// SendNotification ships a framed outbound message with no expected
	// reply (a JSON-RPC notification, or a response this side is
	// emitting to a peer's request).
	SendNotification(ctx context.Context, frame []byte) error
	// ReceiveStream is a push source of inbound frames. It is closed
	// (after a final Frame carrying a terminal error) once the transport
	// can no longer deliver anything.
	ReceiveStream() <-chan Frame
	// Close is idempotent. It unblocks ReceiveStream and causes any
	// in-flight Send to fail with ErrTransportClosed.
	Close() error
	// Alive reports whether the transport can still accept sends. It
	// flips to false strictly before Close returns.
	Alive() bool
}
