// Package env provides the explicit environment context passed through every
// operation. An Env owns the process-wide, read-mostly metadata caches (types,
// triggers, validation rules) with explicit invalidation on write; there is no
// ambient global state.
package env

import (
	"github.com/kommetio/kommet-core/internal/hooks"
	"github.com/kommetio/kommet-core/internal/types"
	"github.com/kommetio/kommet-core/internal/validation"
)

// Env is the per-environment context. All lookups go through it.
type Env struct {
	ID   types.KID
	Name string

	types    *TypeRegistry
	triggers *hooks.Registry
	rules    *validation.Cache
}

// New creates an empty environment.
func New(id types.KID, name string) *Env {
	return &Env{
		ID:       id,
		Name:     name,
		types:    NewTypeRegistry(),
		triggers: hooks.NewRegistry(),
		rules:    validation.NewCache(),
	}
}

// Types returns the environment's type registry.
func (e *Env) Types() *TypeRegistry {
	return e.types
}

// Triggers returns the environment's active-trigger registry.
func (e *Env) Triggers() *hooks.Registry {
	return e.triggers
}

// Rules returns the environment's validation-rule cache.
func (e *Env) Rules() *validation.Cache {
	return e.rules
}

// Type implements types.TypeResolver.
func (e *Env) Type(id types.KID) (*types.Type, bool) {
	return e.types.Get(id)
}

// TypeByQualifiedName resolves a type by its package-qualified name.
func (e *Env) TypeByQualifiedName(name string) (*types.Type, bool) {
	return e.types.GetByQualifiedName(name)
}

// TypeByPrefix resolves a type by its key prefix.
func (e *Env) TypeByPrefix(prefix string) (*types.Type, bool) {
	return e.types.GetByPrefix(prefix)
}
