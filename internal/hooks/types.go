// Package hooks implements the trigger framework: user-supplied compiled
// units bound to CRUD lifecycle phases of a type. Compilation and invocation
// of user code are delegated to collaborator interfaces; the framework never
// assumes anything about how the code is compiled.
package hooks

import (
	"context"

	"github.com/google/uuid"

	"github.com/kommetio/kommet-core/internal/types"
)

// ExecutableUnit is an opaque handle to a compiled piece of user logic.
type ExecutableUnit struct {
	ID     uuid.UUID
	Name   string
	Source string
}

// Compiler turns user-written source into an executable unit.
type Compiler interface {
	Compile(ctx context.Context, name, source string) (*ExecutableUnit, error)
}

// Invoker runs a compiled unit against a trigger context.
type Invoker interface {
	Invoke(ctx context.Context, unit *ExecutableUnit, tctx *TriggerContext) error
}

// Operation is the CRUD operation a trigger fires on.
type Operation int

const (
	OpInsert Operation = iota
	OpUpdate
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// TypeTrigger binds an executable unit to a type with lifecycle flags.
type TypeTrigger struct {
	ID     types.KID
	TypeID types.KID
	Unit   *ExecutableUnit

	BeforeInsert bool
	BeforeUpdate bool
	BeforeDelete bool
	AfterInsert  bool
	AfterUpdate  bool
	AfterDelete  bool

	// OldValuesInjected requests the pre-change snapshot in update contexts.
	// Without it old values are never populated, even if hooks run.
	OldValuesInjected bool

	Disabled bool
}

// Matches reports whether the trigger fires for the given phase and operation.
func (t *TypeTrigger) Matches(before bool, op Operation) bool {
	switch op {
	case OpInsert:
		if before {
			return t.BeforeInsert
		}
		return t.AfterInsert
	case OpUpdate:
		if before {
			return t.BeforeUpdate
		}
		return t.AfterUpdate
	case OpDelete:
		if before {
			return t.BeforeDelete
		}
		return t.AfterDelete
	}
	return false
}

// TriggerContext is handed to every invocation of a trigger unit.
type TriggerContext struct {
	Op     Operation
	Before bool

	// Records are the records being saved or deleted. Before-hooks may
	// mutate them; the mutations persist.
	Records []*types.Record

	// OldRecords maps record id to the pre-change snapshot. Populated only
	// for update operations on triggers with OldValuesInjected; nil (not
	// empty) on insert, where no old state exists.
	OldRecords map[types.KID]*types.Record
}
