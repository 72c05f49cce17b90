package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/honganh1206/mcpkit/jsonrpc"
	"github.com/honganh1206/mcpkit/transport"
)

// WaiterTimeout bounds how long the POST handler will block waiting for
// the engine to produce a reply before giving up and answering 504.
const WaiterTimeout = 30 * time.Second

// ServerTransport is one session's half of the streamable-HTTP server
// side: it satisfies transport.Transport so an mcp.Session can drive it
// exactly like stdio or in-memory, while Hub (below) does the actual
// http.Handler plumbing and session bookkeeping.
type ServerTransport struct {
	sessionID string
	log       *slog.Logger

	in chan transport.Frame

	mu              sync.Mutex
	alive           bool
	requireProtocol string
	sseWriter       http.ResponseWriter
	sseFlusher      http.Flusher
	sseDone         chan struct{}
	waiters         map[string]chan []byte
}

func newServerTransport(sessionID string, logger *slog.Logger) *ServerTransport {
	return &ServerTransport{
		sessionID: sessionID,
		log:       logger,
		in:        make(chan transport.Frame, 16),
		alive:     true,
		waiters:   make(map[string]chan []byte),
	}
}

// RequireProtocolVersion enforces MCP-Protocol-Version on every request
// from this session once negotiation settles on 2025-06-18 or later.
func (s *ServerTransport) RequireProtocolVersion(v string) {
	s.mu.Lock()
	s.requireProtocol = v
	s.mu.Unlock()
}

// SendRequest lets the server side also issue requests to the client
// (e.g. sampling/elicitation call-backs); it is pushed out exactly like
// a notification since both travel over the same inline-or-SSE surface.
func (s *ServerTransport) SendRequest(ctx context.Context, frame []byte) error {
	return s.deliverOutbound(frame)
}

// SendNotification routes an outbound frame (a response, a request, or a
// true server-initiated notification) to whichever in-flight HTTP
// request is waiting for it, or to the open SSE stream if it is a
// genuine push with no waiting POST.
func (s *ServerTransport) SendNotification(ctx context.Context, frame []byte) error {
	return s.deliverOutbound(frame)
}

func (s *ServerTransport) deliverOutbound(frame []byte) error {
	if !s.Alive() {
		return transport.ErrTransportClosed
	}

	ids := allIDs(frame)
	if len(ids) > 0 {
		s.mu.Lock()
		var waiter chan []byte
		for _, id := range ids {
			if w, ok := s.waiters[id]; ok {
				waiter = w
				break
			}
		}
		for _, id := range ids {
			delete(s.waiters, id)
		}
		s.mu.Unlock()

		if waiter != nil {
			waiter <- frame
			return nil
		}
	}

	// No waiter claimed it: either it's a true push (notification with
	// no id) or the original POST already timed out. Either way, the
	// SSE stream (if open) is the only remaining delivery surface.
	s.mu.Lock()
	w, flusher, done := s.sseWriter, s.sseFlusher, s.sseDone
	s.mu.Unlock()

	if w == nil {
		s.log.Warn("httptransport: dropping outbound frame, no open channel", "session", s.sessionID)
		return nil
	}
	if err := writeSSEEvent(w, "", frame); err != nil {
		return err
	}
	flusher.Flush()
	select {
	case <-done:
	default:
	}
	return nil
}

func (s *ServerTransport) ReceiveStream() <-chan transport.Frame { return s.in }

func (s *ServerTransport) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *ServerTransport) Close() error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	s.alive = false
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
	done := s.sseDone
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	close(s.in)
	return nil
}

// registerWaiter creates a reply channel for every request id found in
// an inbound payload (batch-aware) before the frame is handed to the
// engine, so the POST handler can block on it afterward.
func (s *ServerTransport) registerWaiter(ids []string) chan []byte {
	ch := make(chan []byte, len(ids)+1)
	s.mu.Lock()
	for _, id := range ids {
		s.waiters[id] = ch
	}
	s.mu.Unlock()
	return ch
}

func (s *ServerTransport) unregisterWaiter(ids []string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.waiters, id)
	}
	s.mu.Unlock()
}

func (s *ServerTransport) attachSSE(w http.ResponseWriter, flusher http.Flusher, done chan struct{}) {
	s.mu.Lock()
	s.sseWriter, s.sseFlusher, s.sseDone = w, flusher, done
	s.mu.Unlock()
}

func (s *ServerTransport) detachSSE() {
	s.mu.Lock()
	s.sseWriter, s.sseFlusher, s.sseDone = nil, nil, nil
	s.mu.Unlock()
}

// Hub is the http.Handler managing every active session's
// ServerTransport, matching spec §4.5's single-endpoint streamable-HTTP
// server shape: POST to send, GET to open a push stream, DELETE to end
// the session.
type Hub struct {
	log *slog.Logger

	// NewSession is invoked once per freshly-minted session (on an
	// `initialize` POST that arrives with no Mcp-Session-Id), letting
	// the caller wire the ServerTransport into a new mcp.Session.
	NewSession func(st *ServerTransport)

	mu       sync.Mutex
	sessions map[string]*ServerTransport
}

// NewHub builds an empty session hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{log: logger, sessions: make(map[string]*ServerTransport)}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Hub) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sid := r.Header.Get(HeaderSessionID)
	var st *ServerTransport

	if sid == "" {
		if !payloadContainsInitialize(body) {
			http.Error(w, "missing "+HeaderSessionID, http.StatusBadRequest)
			return
		}
		sid = uuid.NewString()
		st = newServerTransport(sid, h.log)
		h.mu.Lock()
		h.sessions[sid] = st
		h.mu.Unlock()
		if h.NewSession != nil {
			h.NewSession(st)
		}
	} else {
		h.mu.Lock()
		st = h.sessions[sid]
		h.mu.Unlock()
		if st == nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	if required := st.requiredProtocolVersion(); required != "" {
		if got := r.Header.Get(HeaderProtocolVer); got != required {
			http.Error(w, "missing or mismatched "+HeaderProtocolVer, http.StatusBadRequest)
			return
		}
	}

	ids := requestIDs(body)
	if len(ids) == 0 {
		// Pure notification or a response-to-server-request: nothing to
		// wait for, acknowledge immediately.
		st.in <- transport.Frame{Data: body}
		w.Header().Set(HeaderSessionID, sid)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	waiter := st.registerWaiter(ids)
	st.in <- transport.Frame{Data: body}

	select {
	case reply, ok := <-waiter:
		if !ok {
			http.Error(w, "session closed", http.StatusGone)
			return
		}
		w.Header().Set(HeaderSessionID, sid)
		w.Header().Set("Content-Type", ContentTypeJSON)
		w.Write(reply)
	case <-time.After(WaiterTimeout):
		st.unregisterWaiter(ids)
		http.Error(w, "timed out waiting for reply", http.StatusGatewayTimeout)
	case <-r.Context().Done():
		st.unregisterWaiter(ids)
	}
}

func (h *Hub) handleGet(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(HeaderSessionID)
	h.mu.Lock()
	st := h.sessions[sid]
	h.mu.Unlock()
	if st == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentTypeEventSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(HeaderSessionID, sid)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	st.attachSSE(w, flusher, done)
	defer st.detachSSE()

	select {
	case <-done:
	case <-r.Context().Done():
	}
}

func (h *Hub) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(HeaderSessionID)
	h.mu.Lock()
	st := h.sessions[sid]
	delete(h.sessions, sid)
	h.mu.Unlock()
	if st == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	st.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *ServerTransport) requiredProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requireProtocol
}

// entryProbe decodes just enough of a single JSON-RPC entry to extract
// its id and method without committing to Request/Notification/Response.
type entryProbe struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

func parseEntries(payload []byte) []entryProbe {
	if jsonrpc.IsBatch(payload) {
		raws, err := jsonrpc.SplitBatch(payload)
		if err != nil {
			return nil
		}
		entries := make([]entryProbe, 0, len(raws))
		for _, raw := range raws {
			var e entryProbe
			if json.Unmarshal(raw, &e) == nil {
				entries = append(entries, e)
			}
		}
		return entries
	}
	var e entryProbe
	if json.Unmarshal(payload, &e) != nil {
		return nil
	}
	return []entryProbe{e}
}

// requestIDs extracts the ids of entries that are requests expecting a
// reply (method present AND id present), batch-aware, so the POST
// handler knows which waiter channel to block on.
func requestIDs(payload []byte) []string {
	var ids []string
	for _, e := range parseEntries(payload) {
		if e.Method == "" {
			continue
		}
		if id, ok := jsonrpc.CanonicalID(e.ID); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// allIDs extracts every id present in a payload regardless of whether
// the entry also carries a method, so outbound routing can match a
// response (id, no method) against the waiter a prior request
// registered.
func allIDs(payload []byte) []string {
	var ids []string
	for _, e := range parseEntries(payload) {
		if id, ok := jsonrpc.CanonicalID(e.ID); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func payloadContainsInitialize(body []byte) bool {
	for _, e := range parseEntries(body) {
		if e.Method == "initialize" {
			return true
		}
	}
	return false
}
