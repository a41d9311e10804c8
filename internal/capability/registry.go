package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler serves one bridge RPC method.
type Handler interface {
	Method() string
	Handle(ctx context.Context, params json.RawMessage) (interface{}, error)
}

// Registry is the fixed method table the bridge client dispatches into.
// Handlers are validated at registration time; the set never changes
// while the client is running.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(h Handler) error {
	method := h.Method()
	if method == "" {
		return fmt.Errorf("capability method name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("capability already registered: %s", method)
	}
	r.handlers[method] = h
	return nil
}

func (r *Registry) Get(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for method := range r.handlers {
		methods = append(methods, method)
	}
	return methods
}
