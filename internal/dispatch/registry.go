package dispatch

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/motto/internal/catalog"
)

// Meta describes the command a handler is executing.
type Meta struct {
	// Command is the catalog key.
	Command string

	// Entry is the full catalog entry.
	Entry catalog.Entry
}

// Response is what a handler reports when it ran to completion. A handler
// fails either by returning an error (a fault, counted by the action's
// circuit breaker) or by setting Failed (a refusal such as "nothing is
// playing", which is not counted).
type Response struct {
	// Failed marks the command as not carried out; Message says why.
	Failed bool

	// Message is a short human-readable outcome. Empty becomes "executed",
	// or "command failed" when Failed is set.
	Message string

	// Data is an optional payload passed through to the caller.
	Data any
}

// Handler executes one action. params holds the command's default
// parameters merged with caller overrides; the handler owns the map.
// Handlers must return promptly once ctx is done.
type Handler func(ctx context.Context, params map[string]any, meta Meta) (Response, error)

// Registry maps action names to handlers. Registering an action again
// replaces its handler. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to action. A nil handler removes the binding.
func (r *Registry) Register(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.handlers, action)
		return
	}
	r.handlers[action] = h
}

// Lookup returns the handler for action.
func (r *Registry) Lookup(action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// Actions returns the registered action names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Clear removes every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.handlers)
}
