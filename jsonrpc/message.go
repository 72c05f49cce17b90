package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/honganh1206/mcpkit/codec"
)

const Version = "2.0"

// Request is an outbound or inbound JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a request-shaped message with no id and no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error, never both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Shape is the classification of a decoded envelope.
type Shape int

const (
	ShapeInvalid Shape = iota
	ShapeRequest
	ShapeNotification
	ShapeResponse
)

// classify inspects a codec-normalized envelope and returns its shape
// (spec §4.2): a present, non-null id plus a method is a request; a
// method with no id is a notification; an id with a result or error and
// no method is a response. Using codec.Value here — rather than
// re-decoding id/method presence straight off json.RawMessage — is what
// makes this the same id-presence check CanonicalID's width-independent
// comparison relies on, instead of a second, separately-maintained one.
func classify(v codec.Value) Shape {
	idField, hasIDField := v.Field("id")
	hasID := hasIDField && idField.Kind != codec.KindNull
	methodField, hasMethod := v.Field("method")
	isMethod := hasMethod && methodField.Kind == codec.KindString && methodField.S != ""
	_, hasResult := v.Field("result")
	_, hasError := v.Field("error")
	switch {
	case isMethod && hasID:
		return ShapeRequest
	case isMethod && !hasID:
		return ShapeNotification
	case hasID && (hasResult || hasError):
		return ShapeResponse
	default:
		return ShapeInvalid
	}
}

// SplitFrame classifies a single raw frame and decodes it into exactly
// one of the three pointers; the other two are nil. An array at the top
// level is never passed to SplitFrame — callers check IsBatch first.
func SplitFrame(raw json.RawMessage) (Shape, *Request, *Notification, *Response, error) {
	v, err := codec.Parse(raw)
	if err != nil {
		return ShapeInvalid, nil, nil, nil, fmt.Errorf("jsonrpc: malformed envelope: %w", err)
	}
	if !v.IsObject() {
		return ShapeInvalid, nil, nil, nil, nil
	}

	switch classify(v) {
	case ShapeRequest:
		var r Request
		if err := json.Unmarshal(raw, &r); err != nil {
			return ShapeInvalid, nil, nil, nil, fmt.Errorf("jsonrpc: malformed request: %w", err)
		}
		return ShapeRequest, &r, nil, nil, nil
	case ShapeNotification:
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return ShapeInvalid, nil, nil, nil, fmt.Errorf("jsonrpc: malformed notification: %w", err)
		}
		return ShapeNotification, nil, &n, nil, nil
	case ShapeResponse:
		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return ShapeInvalid, nil, nil, nil, fmt.Errorf("jsonrpc: malformed response: %w", err)
		}
		return ShapeResponse, nil, nil, &r, nil
	default:
		return ShapeInvalid, nil, nil, nil, nil
	}
}

// IsBatch reports whether raw is a JSON array at the top level, via
// codec's eager-array parse rather than a byte-level peek.
func IsBatch(raw json.RawMessage) bool {
	v, err := codec.Parse(raw)
	if err != nil {
		return false
	}
	return v.IsArray()
}

// SplitBatch decodes a top-level JSON array into its per-entry raw
// messages, preserving order.
func SplitBatch(raw json.RawMessage) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("jsonrpc: malformed batch: %w", err)
	}
	return entries, nil
}

// CanonicalID normalizes a wire id — a quoted string or a bare number —
// to the same comparable string regardless of which JSON literal form
// produced it, so a response id echoed back as "7" matches a pending
// request stored under numeric id 7. Delegates to codec.Parse's
// int/float split instead of re-deciding numeric width here.
func CanonicalID(raw json.RawMessage) (string, bool) {
	v, err := codec.Parse(raw)
	if err != nil {
		return "", false
	}
	switch v.Kind {
	case codec.KindString:
		return v.S, true
	case codec.KindInt:
		return strconv.FormatInt(v.I, 10), true
	case codec.KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64), true
	default:
		return "", false
	}
}

// NumericID renders a monotonic outbound request id as the canonical
// JSON encoding the engine always emits: a bare integer.
func NumericID(id int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf("%d", id))
}
