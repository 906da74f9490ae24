package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/types"
)

// Executor runs the active triggers of a type around save and delete
// operations. It owns no state of its own beyond the registry and the
// injected invoker.
type Executor struct {
	registry *Registry
	invoker  Invoker
	log      *zap.Logger
}

// NewExecutor creates a trigger executor.
func NewExecutor(registry *Registry, invoker Invoker, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{registry: registry, invoker: invoker, log: log}
}

// Registry returns the underlying trigger registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// AnyOldValuesRequested reports whether any active trigger of the type asked
// for pre-change snapshots. Snapshots are only loaded when this returns true.
func (e *Executor) AnyOldValuesRequested(typeID types.KID) bool {
	for _, t := range e.registry.ActiveForType(typeID) {
		if t.OldValuesInjected {
			return true
		}
	}
	return false
}

// Execute runs all active triggers of the type matching the phase and
// operation. OldRecords must be nil for insert operations; it is passed only
// to triggers that requested old values.
func (e *Executor) Execute(ctx context.Context, typeID types.KID, before bool, op Operation, records []*types.Record, oldRecords map[types.KID]*types.Record) error {
	active := e.registry.ActiveForType(typeID)
	if len(active) == 0 {
		return nil
	}
	if e.invoker == nil {
		return fmt.Errorf("no trigger invoker configured but type %s has active triggers", typeID)
	}

	for _, t := range active {
		if !t.Matches(before, op) {
			continue
		}
		tctx := &TriggerContext{
			Op:      op,
			Before:  before,
			Records: records,
		}
		if t.OldValuesInjected && op == OpUpdate {
			tctx.OldRecords = oldRecords
		}
		if err := e.invoker.Invoke(ctx, t.Unit, tctx); err != nil {
			return fmt.Errorf("trigger %s (%s %s) failed: %w", t.ID, phase(before), op, err)
		}
		e.log.Debug("trigger executed",
			zap.String("trigger", t.ID.String()),
			zap.String("type", typeID.String()),
			zap.String("phase", phase(before)),
			zap.String("op", op.String()))
	}
	return nil
}

func phase(before bool) string {
	if before {
		return "before"
	}
	return "after"
}
