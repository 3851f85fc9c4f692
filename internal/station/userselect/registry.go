// Package userselect is the pluggable named-predicate registry referenced
// by spec.md §9 ("resolve by a registry of named predicates at startup").
// It is grounded on the teacher's service.Registry (sync.Map-backed
// lookup-by-name) adapted from a service-discovery registry into a
// predicate registry.
package userselect

import (
	"fmt"
	"sync"
)

// Predicate decides whether an event (represented opaquely as control and
// group, to avoid importing the event package and creating a cycle with
// station) is accepted by a user-defined rule.
type Predicate func(control []int32, group int) bool

// Registry holds named predicates resolved at STATION_CREATE_AT time. A
// host that cannot resolve a requested name rejects the request with
// ERROR per spec.md §9.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register adds a named predicate. Re-registering the same name replaces
// it, matching the teacher's Register() semantics (last writer wins for a
// given id).
func (r *Registry) Register(name string, p Predicate) error {
	if name == "" {
		return fmt.Errorf("userselect: predicate name cannot be empty")
	}
	r.mu.Lock()
	r.predicates[name] = p
	r.mu.Unlock()
	return nil
}

// Resolve looks up a predicate by name.
func (r *Registry) Resolve(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names lists every registered predicate name, for admin introspection.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		out = append(out, name)
	}
	return out
}
