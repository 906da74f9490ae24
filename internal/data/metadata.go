package data

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/hooks"
	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
	"github.com/kommetio/kommet-core/internal/validation"
)

var (
	// ErrTypeHasTriggers blocks deletion of a type with registered triggers
	// unless the caller cascades.
	ErrTypeHasTriggers = errors.New("type has registered triggers")

	// ErrTypeInUse blocks deletion of a type referenced by a required,
	// non-cascading field of another type.
	ErrTypeInUse = errors.New("type is referenced by another type")
)

// CreateType assigns identifiers, creates the backing table, and registers
// the type so it is immediately queryable.
func (s *Service) CreateType(ctx context.Context, typ *types.Type) error {
	if typ.ID.IsNil() {
		id, err := s.seq.Next(ctx, types.TypePrefix)
		if err != nil {
			return err
		}
		typ.ID = id
	}
	if typ.KeyPrefix == "" {
		typ.KeyPrefix = derivedKeyPrefix(typ.ID)
	}
	for _, f := range typ.Fields() {
		if f.ID.IsNil() {
			id, err := s.seq.Next(ctx, types.FieldPrefix)
			if err != nil {
				return err
			}
			f.ID = id
		}
	}

	if err := store.CreateTypeTable(ctx, s.db, typ); err != nil {
		return err
	}
	if err := s.env.Types().Register(typ); err != nil {
		// Table exists but the type is not visible; roll the DDL back.
		store.DropTypeTable(ctx, s.db, typ)
		return err
	}
	s.log.Info("type created",
		zap.String("type", typ.QualifiedName()),
		zap.String("prefix", typ.KeyPrefix))
	return nil
}

// CreateField adds a field to an existing type. The registry entry is
// swapped atomically: concurrent readers see the old or the new type, never
// a partial one.
func (s *Service) CreateField(ctx context.Context, typeID types.KID, f *types.Field) error {
	typ, ok := s.env.Type(typeID)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, typeID)
	}
	if f.ID.IsNil() {
		id, err := s.seq.Next(ctx, types.FieldPrefix)
		if err != nil {
			return err
		}
		f.ID = id
	}

	updated, err := cloneType(typ)
	if err != nil {
		return err
	}
	if err := updated.AddField(f); err != nil {
		return err
	}
	if err := store.AddFieldColumn(ctx, s.db, typ, f); err != nil {
		return err
	}
	return s.env.Types().Update(updated)
}

// DeleteField removes a field and its column.
func (s *Service) DeleteField(ctx context.Context, typeID types.KID, apiName string) error {
	typ, ok := s.env.Type(typeID)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, typeID)
	}
	f, ok := typ.Field(apiName)
	if !ok {
		return fmt.Errorf("%w: %s on type %s", types.ErrNoSuchField, apiName, typ.QualifiedName())
	}

	updated, err := cloneType(typ)
	if err != nil {
		return err
	}
	if err := updated.RemoveField(apiName); err != nil {
		return err
	}
	if err := store.DropFieldColumn(ctx, s.db, typ, f); err != nil {
		return err
	}
	return s.env.Types().Update(updated)
}

// DeleteType removes a type, its table, and its metadata. Registered
// triggers block the deletion unless cascade is set; required cascade-delete
// references from other types cascade to the referencing rows.
func (s *Service) DeleteType(ctx context.Context, typeID types.KID, cascade bool) error {
	typ, ok := s.env.Type(typeID)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, typeID)
	}
	if s.env.Triggers().HasTriggers(typeID) {
		if !cascade {
			return fmt.Errorf("%w: %s", ErrTypeHasTriggers, typ.QualifiedName())
		}
		s.env.Triggers().UnregisterForType(typeID)
	}

	// Rows referencing this type's records from required reference fields:
	// cascade-delete them when flagged, otherwise block.
	for _, other := range s.env.Types().All() {
		if other.ID == typeID {
			continue
		}
		for _, f := range other.Fields() {
			if f.DataType.Kind != types.KindTypeReference || f.DataType.RefTypeID != typeID || !f.Required {
				continue
			}
			if !f.DataType.CascadeDelete {
				return fmt.Errorf("%w: required field %s.%s references %s",
					ErrTypeInUse, other.QualifiedName(), f.APIName, typ.QualifiedName())
			}
			_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s IS NOT NULL",
				other.TableName(), f.DBColumn()))
			if err != nil {
				return store.ConvertDBError(err)
			}
		}
	}

	if err := store.DropTypeTable(ctx, s.db, typ); err != nil {
		return err
	}
	s.env.Types().Unregister(typeID)
	s.env.Rules().InvalidateType(typeID)
	s.log.Info("type deleted", zap.String("type", typ.QualifiedName()))
	return nil
}

// RegisterTrigger assigns an identifier and activates the trigger. Disabled
// triggers are rejected by the registry.
func (s *Service) RegisterTrigger(ctx context.Context, t *hooks.TypeTrigger) error {
	if _, ok := s.env.Type(t.TypeID); !ok {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, t.TypeID)
	}
	if t.ID.IsNil() {
		id, err := s.seq.Next(ctx, types.TypeTriggerPrefix)
		if err != nil {
			return err
		}
		t.ID = id
	}
	return s.env.Triggers().Register(t)
}

// UnregisterTrigger deactivates a trigger immediately.
func (s *Service) UnregisterTrigger(id types.KID) error {
	return s.env.Triggers().Unregister(id)
}

// SaveValidationRule compiles, verifies and registers a rule. Rules with
// invalid field references fail here and are never stored.
func (s *Service) SaveValidationRule(ctx context.Context, r *validation.Rule) error {
	typ, ok := s.env.Type(r.TypeID)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNoSuchType, r.TypeID)
	}
	if r.ID.IsNil() {
		id, err := s.seq.Next(ctx, types.ValidationRulePrefix)
		if err != nil {
			return err
		}
		r.ID = id
	}
	return s.env.Rules().Register(r, typ, s.env)
}

// DeleteValidationRule removes a rule from the cache.
func (s *Service) DeleteValidationRule(id types.KID) {
	s.env.Rules().Unregister(id)
}

// cloneType makes an independent copy of a type for atomic registry swaps.
func cloneType(typ *types.Type) (*types.Type, error) {
	out, err := types.NewType(typ.Package, typ.APIName, typ.Label)
	if err != nil {
		return nil, err
	}
	out.ID = typ.ID
	out.KeyPrefix = typ.KeyPrefix
	out.DefaultField = typ.DefaultField
	out.SharingControlledByField = typ.SharingControlledByField
	out.CombineRecordAndCascadeSharing = typ.CombineRecordAndCascadeSharing
	for _, f := range typ.Fields() {
		if f.System {
			continue
		}
		if err := out.AddField(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// derivedKeyPrefix produces a stable three-character key prefix for a
// user-defined type from its own identifier's sequence part. User prefixes
// start with 'c' so they never collide with built-in prefixes.
func derivedKeyPrefix(typeID types.KID) string {
	seq := typeID.String()[types.KIDLength-2:]
	return "c" + seq
}
