package executor

import (
	"context"
	"fmt"
	"sync"
)

// Registry dispatches activity tasks to the handler registered for their
// activity type.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activityType := h.ActivityType()
	if _, exists := r.handlers[activityType]; exists {
		return fmt.Errorf("handler for activity type %q is already registered", activityType)
	}
	r.handlers[activityType] = h
	return nil
}

func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(activityType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[activityType]
	return h, ok
}

func (r *Registry) Execute(ctx context.Context, req *Request) (*Response, error) {
	h, ok := r.Get(req.ActivityType)
	if !ok {
		return &Response{
			Error: &Error{
				Message:      fmt.Sprintf("no handler registered for activity type %q", req.ActivityType),
				Type:         "NotFound",
				NonRetryable: true,
			},
		}, nil
	}
	return h.Execute(ctx, req)
}

func (r *Registry) ActivityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
