package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Registry maps event kinds to the ordered list of handlers the consumer
// dispatches. Registration happens during process startup; Freeze makes the
// registry immutable before consumption begins.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	handlers map[domain.EventKind][]domain.Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.EventKind][]domain.Handler),
	}
}

// Register binds a handler to a kind. Handlers run in registration order.
// Registering after Freeze fails with ErrRegistryFrozen; registering the same
// handler name twice for one kind is a wiring mistake and fails.
func (r *Registry) Register(kind domain.EventKind, h domain.Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return domain.ErrRegistryFrozen
	}
	for _, existing := range r.handlers[kind] {
		if existing.Name() == h.Name() {
			return fmt.Errorf("handler %q already registered for %s", h.Name(), kind)
		}
	}
	r.handlers[kind] = append(r.handlers[kind], h)
	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// HandlersFor returns the handlers registered for a kind, in registration
// order. The returned slice must not be mutated.
func (r *Registry) HandlersFor(kind domain.EventKind) []domain.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Kinds returns the kinds with at least one handler, sorted for stable
// consumer startup.
func (r *Registry) Kinds() []domain.EventKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.EventKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
