package rpc

import (
	"context"
	"fmt"
	"sync"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
)

// Registry maps procedure names to handlers. Names are unique for the
// lifetime of the registry.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Procedure
	order []string
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure)}
}

// Register adds a procedure. A name can be registered once.
func (r *Registry) Register(name string, proc Procedure) error {
	if name == "" {
		return errspkg.ErrProcedureNameNeeded
	}
	if proc == nil {
		return fmt.Errorf("%s: %w", name, errspkg.ErrProcedureRequired)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procs[name]; exists {
		return fmt.Errorf("%s: %w", name, errspkg.ErrProcedureExists)
	}
	r.procs[name] = proc
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proc, ok := r.procs[name]
	return proc, ok
}

// Names returns procedure names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Invoke runs the named procedure on the calling goroutine.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) (any, error) {
	proc, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errspkg.ErrProcedureNotFound)
	}
	return proc(ctx, call)
}
