package hooks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kommetio/kommet-core/internal/types"
)

// Trigger registration errors.
var (
	// ErrTriggerDisabled is returned when registering a trigger marked disabled.
	ErrTriggerDisabled = errors.New("cannot register a disabled trigger")

	// ErrTriggerNotRegistered is returned when unregistering an unknown trigger.
	ErrTriggerNotRegistered = errors.New("trigger is not registered")
)

// Registry holds the active triggers per type. It is a process-wide,
// read-mostly cache: registration and removal take the write lock and are
// visible to subsequent executions immediately.
type Registry struct {
	mu     sync.RWMutex
	byType map[types.KID][]*TypeTrigger
	byID   map[types.KID]*TypeTrigger
}

// NewRegistry creates an empty trigger registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[types.KID][]*TypeTrigger),
		byID:   make(map[types.KID]*TypeTrigger),
	}
}

// Register adds a trigger to the active set of its type. Disabled triggers
// are rejected rather than silently skipped.
func (r *Registry) Register(t *TypeTrigger) error {
	if t.Disabled {
		return fmt.Errorf("%w: trigger %s on type %s", ErrTriggerDisabled, t.ID, t.TypeID)
	}
	if t.Unit == nil {
		return fmt.Errorf("trigger %s has no executable unit", t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[t.ID]; exists {
		return fmt.Errorf("trigger %s is already registered", t.ID)
	}
	r.byID[t.ID] = t
	r.byType[t.TypeID] = append(r.byType[t.TypeID], t)
	return nil
}

// Unregister removes a trigger from the active set immediately; there is no
// stale re-execution after it returns.
func (r *Registry) Unregister(triggerID types.KID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.byID[triggerID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTriggerNotRegistered, triggerID)
	}
	delete(r.byID, triggerID)
	active := r.byType[t.TypeID]
	for i, candidate := range active {
		if candidate.ID == triggerID {
			r.byType[t.TypeID] = append(active[:i], active[i+1:]...)
			break
		}
	}
	if len(r.byType[t.TypeID]) == 0 {
		delete(r.byType, t.TypeID)
	}
	return nil
}

// UnregisterForType drops every trigger registered for the type.
func (r *Registry) UnregisterForType(typeID types.KID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byType[typeID] {
		delete(r.byID, t.ID)
	}
	delete(r.byType, typeID)
}

// ActiveForType returns the active triggers of a type, in registration order.
func (r *Registry) ActiveForType(typeID types.KID) []*TypeTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := r.byType[typeID]
	out := make([]*TypeTrigger, len(active))
	copy(out, active)
	return out
}

// HasTriggers reports whether any trigger is registered for the type.
func (r *Registry) HasTriggers(typeID types.KID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[typeID]) > 0
}

// Get returns a registered trigger by id.
func (r *Registry) Get(triggerID types.KID) (*TypeTrigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[triggerID]
	return t, ok
}
