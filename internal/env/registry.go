package env

import (
	"fmt"
	"sync"

	"github.com/kommetio/kommet-core/internal/types"
)

// TypeRegistry is the process-wide cache of type definitions for an
// environment. Readers see either the fully-old or fully-new state of a type;
// mutation happens under the write lock and replaces entries atomically.
type TypeRegistry struct {
	mu       sync.RWMutex
	byID     map[types.KID]*types.Type
	byName   map[string]*types.Type
	byPrefix map[string]*types.Type
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byID:     make(map[types.KID]*types.Type),
		byName:   make(map[string]*types.Type),
		byPrefix: make(map[string]*types.Type),
	}
}

// Register adds a type to the registry, rejecting duplicate qualified names
// and key prefixes.
func (r *TypeRegistry) Register(t *types.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID.IsNil() {
		return fmt.Errorf("cannot register type %s without an identifier", t.APIName)
	}
	if _, exists := r.byName[t.QualifiedName()]; exists {
		return fmt.Errorf("%w: qualified name %s is already registered", types.ErrDuplicateType, t.QualifiedName())
	}
	if _, exists := r.byPrefix[t.KeyPrefix]; exists {
		return fmt.Errorf("%w: key prefix %s is already registered", types.ErrDuplicateType, t.KeyPrefix)
	}
	r.byID[t.ID] = t
	r.byName[t.QualifiedName()] = t
	r.byPrefix[t.KeyPrefix] = t
	return nil
}

// Update replaces a registered type definition atomically. Used after field
// additions so later lookups on the same process see the new field.
func (r *TypeRegistry) Update(t *types.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.byID[t.ID]
	if !exists {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, t.ID)
	}
	delete(r.byName, old.QualifiedName())
	delete(r.byPrefix, old.KeyPrefix)
	r.byID[t.ID] = t
	r.byName[t.QualifiedName()] = t
	r.byPrefix[t.KeyPrefix] = t
	return nil
}

// Unregister removes a type from the registry.
func (r *TypeRegistry) Unregister(id types.KID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.byID[id]
	if !exists {
		return
	}
	delete(r.byID, id)
	delete(r.byName, t.QualifiedName())
	delete(r.byPrefix, t.KeyPrefix)
}

// Get returns a type by identifier.
func (r *TypeRegistry) Get(id types.KID) (*types.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// GetByQualifiedName returns a type by its package-qualified name.
func (r *TypeRegistry) GetByQualifiedName(name string) (*types.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// GetByPrefix returns a type by its key prefix.
func (r *TypeRegistry) GetByPrefix(prefix string) (*types.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byPrefix[prefix]
	return t, ok
}

// All returns a snapshot of all registered types.
func (r *TypeRegistry) All() []*types.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*types.Type, 0, len(r.byID))
	for _, t := range r.byID {
		all = append(all, t)
	}
	return all
}
