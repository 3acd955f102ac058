// Package registry assigns stable identifiers to modules.
//
// Identifiers are name-based UUIDs (SHA-1, version 5) under a fixed
// namespace, so independent processes derive the same identifier for the
// same module name without sharing any state. Two names colliding on the
// same 122 bits is treated as negligible.
package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Namespace is the fixed namespace under which module identifiers are derived.
// Changing it changes every generated identifier.
var Namespace = uuid.MustParse("5f0c3e0a-8b61-4f3b-9d2e-6a7c1b4e2d90")

// Registry maps module names to identifiers. Entries are created on first
// lookup and never removed, so a module that disappears keeps its identifier.
// A Registry is safe for concurrent use.
type Registry struct {
	namespace uuid.UUID

	mu  sync.Mutex
	ids map[string]uuid.UUID
}

// New creates a registry using Namespace.
func New() *Registry {
	return NewWithNamespace(Namespace)
}

// NewWithNamespace creates a registry deriving identifiers under ns.
func NewWithNamespace(ns uuid.UUID) *Registry {
	return &Registry{
		namespace: ns,
		ids:       make(map[string]uuid.UUID),
	}
}

// IDFor returns the identifier for a module name.
func (r *Registry) IDFor(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.ids[name]; ok {
		return id
	}
	id := uuid.NewSHA1(r.namespace, []byte(name))
	r.ids[name] = id
	return id
}

// BracedFor returns IDFor(name) in braced upper-case form.
func (r *Registry) BracedFor(name string) string {
	return Braced(r.IDFor(name))
}

// Len returns the number of names seen so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Names returns every name seen so far, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.ids))
	for name := range r.ids {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Braced formats id as {XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}, the form
// used by project and solution files.
func Braced(id uuid.UUID) string {
	return "{" + strings.ToUpper(id.String()) + "}"
}
