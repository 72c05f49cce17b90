package mcp

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// changeKind enumerates the subscribable change events spec §3 names:
// registry mutations (tools/prompts/resources list_changed) and
// per-resource update notifications, plus the fixed logging/message
// stream.
type changeKind string

const (
	changeToolsListChanged     changeKind = "tools/list_changed"
	changePromptsListChanged   changeKind = "prompts/list_changed"
	changeResourcesListChanged changeKind = "resources/list_changed"
	changeLoggingMessage       changeKind = "logging/message"
)

func changeResourceUpdated(uri string) changeKind {
	return changeKind("resources/updated:" + uri)
}

// subscriber is invoked with a change's payload. It never appears on
// the wire; it is an in-process callback (used directly by the
// in-memory-transport test scenarios in spec §8, and by a session's
// own notification-forwarding handler over a real transport).
type subscriber func(payload any)

// registry is the capability registry: copy-on-write snapshots of the
// tool/prompt/resource sets, plus the change-notification subscriber
// lists. Snapshots use github.com/wk8/go-ordered-map/v2 so that list
// operations (tools/list, prompts/list, resources/list) iterate in a
// deterministic, insertion-preserving order, which a plain Go map's
// randomized iteration cannot give. Notification fan-out walks each
// kind's subscriber slice in subscription order.
type registry struct {
	mu sync.Mutex // guards publish (not the snapshots themselves)

	toolsSnap     *orderedmap.OrderedMap[string, Tool]
	promptsSnap   *orderedmap.OrderedMap[string, Prompt]
	resourcesSnap *orderedmap.OrderedMap[string, Resource]

	subsMu sync.Mutex
	subs   map[changeKind][]subscriber
}

func newRegistry() *registry {
	return &registry{
		toolsSnap:     orderedmap.New[string, Tool](),
		promptsSnap:   orderedmap.New[string, Prompt](),
		resourcesSnap: orderedmap.New[string, Resource](),
		subs:          make(map[changeKind][]subscriber),
	}
}

// snapshot is an immutable, independently-iterable view returned to
// callers; publish swaps the registry's active snapshot for a fresh
// copy rather than mutating the one in flight.
func cloneTools(m *orderedmap.OrderedMap[string, Tool]) *orderedmap.OrderedMap[string, Tool] {
	out := orderedmap.New[string, Tool]()
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func clonePrompts(m *orderedmap.OrderedMap[string, Prompt]) *orderedmap.OrderedMap[string, Prompt] {
	out := orderedmap.New[string, Prompt]()
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func cloneResources(m *orderedmap.OrderedMap[string, Resource]) *orderedmap.OrderedMap[string, Resource] {
	out := orderedmap.New[string, Resource]()
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// RegisterTool adds or replaces a tool and, if notify is non-nil,
// publishes tools/list_changed after the new snapshot is visible.
func (r *registry) RegisterTool(t Tool, notify func(changeKind, any)) {
	r.mu.Lock()
	next := cloneTools(r.toolsSnap)
	next.Set(t.Name, t)
	r.toolsSnap = next
	r.mu.Unlock()
	if notify != nil {
		notify(changeToolsListChanged, nil)
	}
}

func (r *registry) Tools() []Tool {
	r.mu.Lock()
	snap := r.toolsSnap
	r.mu.Unlock()
	out := make([]Tool, 0, snap.Len())
	for pair := snap.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) Tool(name string) (Tool, bool) {
	r.mu.Lock()
	snap := r.toolsSnap
	r.mu.Unlock()
	return snap.Get(name)
}

// RegisterPrompt adds or replaces a prompt and, if notify is non-nil,
// publishes prompts/list_changed after the new snapshot is visible.
func (r *registry) RegisterPrompt(p Prompt, notify func(changeKind, any)) {
	r.mu.Lock()
	next := clonePrompts(r.promptsSnap)
	next.Set(p.Name, p)
	r.promptsSnap = next
	r.mu.Unlock()
	if notify != nil {
		notify(changePromptsListChanged, nil)
	}
}

func (r *registry) Prompts() []Prompt {
	r.mu.Lock()
	snap := r.promptsSnap
	r.mu.Unlock()
	out := make([]Prompt, 0, snap.Len())
	for pair := snap.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) Prompt(name string) (Prompt, bool) {
	r.mu.Lock()
	snap := r.promptsSnap
	r.mu.Unlock()
	return snap.Get(name)
}

// RegisterResource adds or replaces a resource and, if notify is
// non-nil, publishes resources/list_changed after the new snapshot is
// visible.
func (r *registry) RegisterResource(res Resource, notify func(changeKind, any)) {
	r.mu.Lock()
	next := cloneResources(r.resourcesSnap)
	next.Set(res.URI, res)
	r.resourcesSnap = next
	r.mu.Unlock()
	if notify != nil {
		notify(changeResourcesListChanged, nil)
	}
}

func (r *registry) Resources() []Resource {
	r.mu.Lock()
	snap := r.resourcesSnap
	r.mu.Unlock()
	out := make([]Resource, 0, snap.Len())
	for pair := snap.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) Resource(uri string) (Resource, bool) {
	r.mu.Lock()
	snap := r.resourcesSnap
	r.mu.Unlock()
	return snap.Get(uri)
}

// Subscribe registers sub to fire for every future Publish of kind.
// Subscribers for a kind fire in the order they subscribed, matching
// the producer's emission order (spec §5, §8 scenario 6).
func (r *registry) Subscribe(kind changeKind, sub subscriber) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs[kind] = append(r.subs[kind], sub)
}

// Unsubscribe drops every subscriber registered for kind (used by
// resources/unsubscribe; the MCP wire protocol has no notion of a
// per-subscriber handle, only per-URI subscribe/unsubscribe).
func (r *registry) Unsubscribe(kind changeKind) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	delete(r.subs, kind)
}

// Publish fires every subscriber registered for kind, in subscription
// order, synchronously on the caller's goroutine — the caller (session
// notification handling) is responsible for not holding any lock this
// could deadlock against.
func (r *registry) Publish(kind changeKind, payload any) {
	r.subsMu.Lock()
	subs := append([]subscriber(nil), r.subs[kind]...)
	r.subsMu.Unlock()
	for _, sub := range subs {
		sub(payload)
	}
}

// HasSubscribers reports whether kind currently has at least one
// subscriber (used to implement "resource update for an unsubscribed
// URI → no delivery", spec §8).
func (r *registry) HasSubscribers(kind changeKind) bool {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	return len(r.subs[kind]) > 0
}
