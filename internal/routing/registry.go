package routing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/drblury/eventgateway/internal/event"
	errspkg "github.com/drblury/eventgateway/internal/runtime/errors"
)

// Route names the pipeline dispatches to.
const (
	RouteScoped  = "scoped"
	RouteGeneral = "general"
)

// Handler reacts to a routed content event.
type Handler interface {
	OnReceive(ctx context.Context, ev event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev event.Event) error

func (f HandlerFunc) OnReceive(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}

// HandlerError reports a failed or panicking handler.
type HandlerError struct {
	Handler string
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("routing: handler %q failed for event %q: %v", e.Handler, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Registry maps route names to handlers. It is filled during startup and
// frozen before messages flow.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to handler. Empty or duplicate names are rejected.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", errspkg.ErrHandlerRequired, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", errspkg.ErrRegistryFrozen, name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("routing: handler %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered route names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}
