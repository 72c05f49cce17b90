// Package codec converts between raw JSON bytes and the normalized
// in-memory value shapes the jsonrpc and mcp packages correlate on.
//
// encoding/json's default decoding into any produces float64 for numbers
// and map[string]any for objects, which is exactly the representation the
// rest of the engine must NOT depend on: ids have to compare equal
// regardless of the width the parser chose, and handler code needs to walk
// arrays eagerly rather than guess whether a value is indexable. Parse
// normalizes away both pitfalls; Write reverses the normalization losslessly.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Kind enumerates the normalized shapes a Value can take.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// Value is the normalized in-memory form of a parsed JSON value.
//
//   - Integral JSON numbers (any literal whose value is a whole number in
//     int64 range, including forms like 7.0 or 7e0) decode to KindInt
//     carrying an int64, so that a request id of
//     7 always compares equal to a response id of 7 regardless of which
//     numeric literal form the peer's encoder chose.
//   - Non-integral numbers decode to KindFloat carrying a float64.
//   - Arrays decode to KindArray carrying a plain []Value: positional,
//     O(1) indexed, fully materialized (no lazy iterators).
//   - Objects decode to KindObject carrying a map[string]Value keyed by
//     the raw JSON key string, which doubles as MCP's canonical symbolic
//     form for handler code (field lookups are plain map access).
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
	Arr  []Value
	Obj  map[string]Value
	// Keys lists the object's keys in alphabetical order. Write does not
	// consult it; encoding/json emits map keys sorted anyway.
	Keys []string
}

// MalformedPayloadError is returned by Parse when bytes are not valid
// JSON. Callers at the jsonrpc layer translate it to wire code -32700.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("codec: malformed payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// Parse decodes bytes into a normalized Value tree.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, &MalformedPayloadError{Err: err}
	}
	// Reject trailing garbage after the first JSON value: a conforming
	// single message must be exactly one value.
	if dec.More() {
		return Value{}, &MalformedPayloadError{Err: fmt.Errorf("trailing data after JSON value")}
	}

	return fromAny(raw), nil
}

// ParseMany decodes a JSON array into its normalized element Values
// without requiring the caller to pre-know it is a batch. It is a thin
// convenience over Parse for batch-shaped payloads.
func ParseMany(data []byte) ([]Value, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindArray {
		return nil, &MalformedPayloadError{Err: fmt.Errorf("expected a JSON array, got kind %d", v.Kind)}
	}
	return v.Arr, nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, B: t}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Value{Kind: KindInt, I: i}
		}
		f, _ := t.Float64()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return Value{Kind: KindInt, I: int64(f)}
		}
		return Value{Kind: KindFloat, F: f}
	case string:
		return Value{Kind: KindString, S: t}
	case []any:
		arr := make([]Value, 0, len(t))
		for _, e := range t {
			arr = append(arr, fromAny(e))
		}
		return Value{Kind: KindArray, Arr: arr}
	case map[string]any:
		// encoding/json already preserves no particular order in a
		// map[string]any; recover a stable order by decoding again
		// with json.RawMessage pairs via a secondary pass is wasted
		// work for our purposes, so objects built from fromAny use
		// alphabetical key order on Write. Source key order is not
		// kept.
		obj := make(map[string]Value, len(t))
		keys := make([]string, 0, len(t))
		for k, v := range t {
			obj[k] = fromAny(v)
			keys = append(keys, k)
		}
		return Value{Kind: KindObject, Obj: obj, Keys: sortedKeys(keys)}
	default:
		return Value{Kind: KindNull}
	}
}

func sortedKeys(keys []string) []string {
	// Simple insertion sort; object key counts in MCP payloads are small
	// (single-digit fields), so O(n^2) is irrelevant and avoids pulling
	// in sort for a handful of elements.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Write serializes a Value back to compact JSON bytes with no embedded
// newlines, suitable for line-framed transports.
func Write(v Value) ([]byte, error) {
	return json.Marshal(toAny(v))
}

func toAny(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.B
	case KindInt:
		return v.I
	case KindFloat:
		return v.F
	case KindString:
		return v.S
	case KindArray:
		out := make([]any, 0, len(v.Arr))
		for _, e := range v.Arr {
			out = append(out, toAny(e))
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = toAny(e)
		}
		return out
	default:
		return nil
	}
}

// IsArray reports whether v is a normalized array, the predicate the
// engine uses to decide whether an inbound message is a batch.
func (v Value) IsArray() bool { return v.Kind == KindArray }

// IsObject reports whether v is a normalized object.
func (v Value) IsObject() bool { return v.Kind == KindObject }

// Field looks up a key on an object Value. Returns the zero Value and
// false for non-objects or missing keys.
func (v Value) Field(key string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	f, ok := v.Obj[key]
	return f, ok
}

// Marshal re-encodes any Go value to compact JSON, the form transports
// hand to their underlying I/O.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes compact JSON bytes into a typed Go value, translating
// a decode failure into a MalformedPayloadError.
func Unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &MalformedPayloadError{Err: err}
	}
	return nil
}
