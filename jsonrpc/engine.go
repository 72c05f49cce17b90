package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/honganh1206/mcpkit/transport"
)

// Handler answers one inbound request or notification. For a request,
// a non-nil rpcErr is sent back verbatim as the JSON-RPC error object;
// a non-nil result is marshalled as the response result. For a
// notification the return values are discarded — notifications never
// produce a reply — but the same Handler type is reused so a single
// dispatch table can hold methods of either shape (spec §4.2).
type Handler func(ctx context.Context, params json.RawMessage) (result any, rpcErr *Error)

type pendingEntry struct {
	ch chan *Response
}

// Engine is the JSON-RPC 2.0 correlation and dispatch core shared by
// both sides of an MCP session: it allocates outbound ids, tracks
// requests awaiting a reply, routes inbound requests/notifications to
// registered handlers, and routes inbound responses back to whichever
// goroutine is blocked in SendRequest.
//
// Grounded on mcp/jsonrpc2.go's Connection in the teacher repo (atomic
// id counter, mutex-guarded pending map, notification channel), with a
// method-dispatch table and batch handling folded in for the server
// side the teacher's client-only Connection never needed.
type Engine struct {
	t transport.Transport

	nextID int64

	pendingMu sync.Mutex
	pending   map[string]pendingEntry

	dispatchMu sync.RWMutex
	dispatch   map[string]Handler

	log *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	runOnce   sync.Once
}

// New wraps a transport with a fresh, empty Engine. logger may be nil,
// in which case slog.Default() is used.
func New(t transport.Transport, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		t:        t,
		pending:  make(map[string]pendingEntry),
		dispatch: make(map[string]Handler),
		log:      logger,
		closed:   make(chan struct{}),
	}
}

// HandleFunc registers (or replaces) the handler for method. Safe to
// call concurrently with dispatch.
func (e *Engine) HandleFunc(method string, h Handler) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.dispatch[method] = h
}

// Run drains the transport's inbound frame stream and dispatches each
// frame until the transport closes or ctx is cancelled. It is the
// "reader task" of spec §4.4/§9: request handlers never run on it (each
// inbound request, and each batch, is handled on its own goroutine).
// Notification handlers run on it in arrival order, so a notification
// handler that blocks stalls the pump.
func (e *Engine) Run(ctx context.Context) {
	e.runOnce.Do(func() {
		go e.pump(ctx)
	})
}

func (e *Engine) pump(ctx context.Context) {
	frames := e.t.ReceiveStream()
	for {
		select {
		case <-ctx.Done():
			e.failAllPending(ErrTransportClosed)
			return
		case fr, ok := <-frames:
			if !ok {
				e.failAllPending(ErrTransportClosed)
				return
			}
			if fr.Err != nil {
				e.log.Warn("jsonrpc: transport stream ended", "err", fr.Err)
				e.failAllPending(ErrTransportClosed)
				return
			}
			// Requests and batches run on their own goroutine so a
			// slow request handler never blocks the pump. Responses
			// (cheap map work) and notifications are handled inline,
			// which keeps their arrival order.
			if shape, _, _, _, _ := SplitFrame(fr.Data); shape == ShapeRequest || IsBatch(fr.Data) {
				go e.handleFrame(ctx, fr.Data)
				continue
			}
			e.handleFrame(ctx, fr.Data)
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, raw json.RawMessage) {
	if IsBatch(raw) {
		entries, err := SplitBatch(raw)
		if err != nil {
			e.replyError(nil, ParseError(err.Error()))
			return
		}
		if len(entries) == 0 {
			e.replyError(nil, InvalidRequest("empty batch"))
			return
		}

		var wg sync.WaitGroup
		responses := make([]*Response, len(entries))
		for i, entry := range entries {
			wg.Add(1)
			go func(i int, entry json.RawMessage) {
				defer wg.Done()
				responses[i] = e.handleEntry(ctx, entry)
			}(i, entry)
		}
		wg.Wait()

		var toSend []*Response
		for _, r := range responses {
			if r != nil {
				toSend = append(toSend, r)
			}
		}
		if len(toSend) == 0 {
			return
		}
		out, err := json.Marshal(toSend)
		if err != nil {
			e.log.Error("jsonrpc: failed to marshal batch response", "err", err)
			return
		}
		if err := e.t.SendNotification(ctx, out); err != nil {
			e.log.Warn("jsonrpc: failed to send batch response", "err", err)
		}
		return
	}

	resp := e.handleEntry(ctx, raw)
	if resp == nil {
		return
	}
	out, err := json.Marshal(resp)
	if err != nil {
		e.log.Error("jsonrpc: failed to marshal response", "err", err)
		return
	}
	if err := e.t.SendNotification(ctx, out); err != nil {
		e.log.Warn("jsonrpc: failed to send response", "err", err)
	}
}

// handleEntry processes one non-batch frame. It returns a *Response
// only when this frame was a request needing a reply (including a
// malformed-shape reply); responses and notifications never produce one.
func (e *Engine) handleEntry(ctx context.Context, raw json.RawMessage) *Response {
	shape, req, noti, resp, err := SplitFrame(raw)
	if err != nil {
		return &Response{JSONRPC: Version, ID: json.RawMessage("null"), Error: ParseError(err.Error())}
	}

	switch shape {
	case ShapeResponse:
		e.completeResponse(resp)
		return nil

	case ShapeNotification:
		e.dispatchMu.RLock()
		h, ok := e.dispatch[noti.Method]
		e.dispatchMu.RUnlock()
		if !ok {
			e.log.Debug("jsonrpc: dropping notification with no handler", "method", noti.Method)
			return nil
		}
		e.invokeSafely(ctx, h, noti.Params)
		return nil

	case ShapeRequest:
		e.dispatchMu.RLock()
		h, ok := e.dispatch[req.Method]
		e.dispatchMu.RUnlock()
		if !ok {
			return &Response{JSONRPC: Version, ID: req.ID, Error: MethodNotFound(req.Method)}
		}
		result, rpcErr := e.invokeSafely(ctx, h, req.Params)
		if rpcErr != nil {
			return &Response{JSONRPC: Version, ID: req.ID, Error: rpcErr}
		}
		resultBytes, err := json.Marshal(result)
		if err != nil {
			return &Response{JSONRPC: Version, ID: req.ID, Error: InternalError("failed to encode result")}
		}
		return &Response{JSONRPC: Version, ID: req.ID, Result: resultBytes}

	default:
		return &Response{JSONRPC: Version, ID: json.RawMessage("null"), Error: InvalidRequest("unrecognized message shape")}
	}
}

// invokeSafely runs a handler, converting a panic into -32603 instead of
// ever crashing the process on peer input (spec §7 propagation policy).
func (e *Engine) invokeSafely(ctx context.Context, h Handler, params json.RawMessage) (result any, rpcErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("jsonrpc: handler panicked", "panic", r)
			result = nil
			rpcErr = InternalError("handler failed")
		}
	}()
	return h(ctx, params)
}

func (e *Engine) completeResponse(resp *Response) {
	id, ok := CanonicalID(resp.ID)
	if !ok {
		e.log.Warn("jsonrpc: dropping response with no id")
		return
	}

	e.pendingMu.Lock()
	entry, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.pendingMu.Unlock()

	if !ok {
		// Late/duplicate/timed-out response: log and drop, never panic.
		e.log.Debug("jsonrpc: dropping response for unknown or already-completed id", "id", id)
		return
	}

	select {
	case entry.ch <- resp:
	default:
	}
	close(entry.ch)
}

// replyError sends a bare JSON-RPC error Response with the given id
// (nil becomes the wire null id per the JSON-RPC 2.0 spec for requests
// that could not be parsed enough to recover an id).
func (e *Engine) replyError(id json.RawMessage, rpcErr *Error) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := &Response{JSONRPC: Version, ID: id, Error: rpcErr}
	out, err := json.Marshal(resp)
	if err != nil {
		e.log.Error("jsonrpc: failed to marshal error response", "err", err)
		return
	}
	if err := e.t.SendNotification(context.Background(), out); err != nil {
		e.log.Warn("jsonrpc: failed to send error response", "err", err)
	}
}

// SendRequest allocates a monotonically increasing numeric id, frames
// method/params as a request, hands it to the transport, and blocks
// until a terminal event occurs: a result, a peer error, a timeout, a
// cancelled ctx, or transport death.
func (e *Engine) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	select {
	case <-e.closed:
		return nil, ErrEngineClosed
	default:
	}

	id := atomic.AddInt64(&e.nextID, 1)
	idStr := strconv.FormatInt(id, 10)

	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		paramsBytes = b
	}

	req := &Request{JSONRPC: Version, ID: NumericID(id), Method: method, Params: paramsBytes}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal request: %w", err)
	}

	respCh := make(chan *Response, 1)

	e.pendingMu.Lock()
	select {
	case <-e.closed:
		e.pendingMu.Unlock()
		return nil, ErrEngineClosed
	default:
	}
	e.pending[idStr] = pendingEntry{ch: respCh}
	e.pendingMu.Unlock()

	removePending := func() {
		e.pendingMu.Lock()
		delete(e.pending, idStr)
		e.pendingMu.Unlock()
	}

	if err := e.t.SendRequest(ctx, frame); err != nil {
		removePending()
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		removePending()
		return nil, ctx.Err()
	case <-timeoutCh:
		removePending()
		return nil, ErrTimeout
	case <-e.closed:
		removePending()
		return nil, ErrTransportClosed
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrTransportClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// SendNotification frames method/params as a notification and hands it
// to the transport, completing once the transport accepts the bytes.
func (e *Engine) SendNotification(ctx context.Context, method string, params any) error {
	select {
	case <-e.closed:
		return ErrEngineClosed
	default:
	}

	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		paramsBytes = b
	}

	noti := &Notification{JSONRPC: Version, Method: method, Params: paramsBytes}
	frame, err := json.Marshal(noti)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal notification: %w", err)
	}

	if err := e.t.SendNotification(ctx, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

// Close stops the engine: it fails every pending request with
// ErrTransportClosed and marks the engine so further sends return
// ErrEngineClosed. It does not close the underlying transport — the
// owner of the transport (the session) is responsible for that.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.failAllPending(ErrTransportClosed)
	})
}

func (e *Engine) failAllPending(cause error) {
	e.pendingMu.Lock()
	entries := e.pending
	e.pending = make(map[string]pendingEntry)
	e.pendingMu.Unlock()

	for _, entry := range entries {
		close(entry.ch)
	}
	_ = cause
}
