package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/credflow/pkg/api"
)

// HandlerRegistry maps action types to their handlers.
type HandlerRegistry struct {
	mu     sync.RWMutex
	byType map[api.ActionType]api.ActionHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byType: make(map[api.ActionType]api.ActionHandler),
	}
}

// Register adds h for t. Registering the same type twice is an error.
func (r *HandlerRegistry) Register(t api.ActionType, h api.ActionHandler) error {
	if t == "" {
		return fmt.Errorf("action type is required")
	}
	if h == nil {
		return fmt.Errorf("handler for %q is nil", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[t]; exists {
		return fmt.Errorf("handler for action type %q already registered", t)
	}
	r.byType[t] = h
	return nil
}

// MustRegister is like Register but panics on error.
func (r *HandlerRegistry) MustRegister(t api.ActionType, h api.ActionHandler) {
	if err := r.Register(t, h); err != nil {
		panic(err)
	}
}

func (r *HandlerRegistry) Get(t api.ActionType) (api.ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byType[t]
	return h, ok
}

// Types returns the registered action types in sorted order.
func (r *HandlerRegistry) Types() []api.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.ActionType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
