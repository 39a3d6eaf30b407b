package worker

import "sync"

// HookKind selects which statements a hook observes.
type HookKind int

const (
	// HookAnyQuery observes every successfully executed statement.
	HookAnyQuery HookKind = iota
	// HookSelect observes SELECT statements.
	HookSelect
	// HookInsert observes INSERT statements.
	HookInsert
	// HookUpdate observes UPDATE statements.
	HookUpdate
	// HookDelete observes DELETE statements.
	HookDelete
)

// Hook is a statement observer callback.
//
// Hooks run synchronously on the dispatch goroutine after the statement's
// outcome is known and before the Response is delivered, so observers see
// effects in the same order callers can. A slow hook delays the pipeline;
// a panicking hook is contained and logged, never failing the Response.
type Hook func(query string, args []any)

// HookHandle identifies a registration for later removal.
// Handles are never reused within a registry's lifetime.
type HookHandle struct {
	kind HookKind
	id   uint64
}

// hookEntry pairs a callback with its registration id.
type hookEntry struct {
	id uint64
	fn Hook
}

// HookRegistry maps hook kinds to ordered observer lists.
//
// Registration order is preserved for deterministic invocation order.
// Registering the same callback twice under the same kind is permitted
// and fires it twice; registrations are identified by handle, not by
// function identity.
//
// Thread Safety: all methods are safe for concurrent use.
type HookRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	hooks  map[HookKind][]hookEntry
}

// newHookRegistry creates an empty registry.
func newHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookKind][]hookEntry),
	}
}

// Register adds a callback for the given kind and returns its handle.
func (r *HookRegistry) Register(kind HookKind, fn Hook) HookHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.hooks[kind] = append(r.hooks[kind], hookEntry{id: r.nextID, fn: fn})
	return HookHandle{kind: kind, id: r.nextID}
}

// Unregister removes the registration identified by handle.
// Returns false if the handle is unknown (already removed, or zero).
func (r *HookRegistry) Unregister(h HookHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.hooks[h.kind]
	for i, e := range entries {
		if e.id == h.id {
			r.hooks[h.kind] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the callbacks to invoke for a statement kind:
// all AnyQuery hooks first, then the kind-specific hooks, each group in
// registration order. The copy lets hooks register or unregister without
// holding the registry lock during invocation.
func (r *HookRegistry) snapshot(kind HookKind) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Hook, 0, len(r.hooks[HookAnyQuery])+len(r.hooks[kind]))
	for _, e := range r.hooks[HookAnyQuery] {
		out = append(out, e.fn)
	}
	if kind != HookAnyQuery {
		for _, e := range r.hooks[kind] {
			out = append(out, e.fn)
		}
	}
	return out
}

// hookKindFor maps a statement kind to its specific hook kind.
func hookKindFor(k Kind) HookKind {
	switch k {
	case KindSelect:
		return HookSelect
	case KindInsert:
		return HookInsert
	case KindUpdate:
		return HookUpdate
	case KindDelete:
		return HookDelete
	default:
		return HookAnyQuery
	}
}

// dispatch invokes the hooks for one successfully executed statement.
// Panics inside callbacks are recovered and logged so one misbehaving
// observer cannot stop the dispatch loop.
func (w *Worker) dispatchHooks(kind Kind, query string, args []any) {
	for _, fn := range w.hooks.snapshot(hookKindFor(kind)) {
		w.invokeHook(fn, query, args)
	}
}

// invokeHook calls a single hook with panic containment.
func (w *Worker) invokeHook(fn Hook, query string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("hook panic recovered",
				"query", query,
				"panic", r,
			)
		}
	}()
	fn(query, args)
}
