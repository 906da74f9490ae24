package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/auth"
	"github.com/kommetio/kommet-core/internal/hooks"
	"github.com/kommetio/kommet-core/internal/sharing"
	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
)

// referencingField is a reference field on another type that points at the
// type of a record being deleted.
type referencingField struct {
	typ   *types.Type
	field *types.Field
}

// DeleteRecord deletes a record after privilege gating and a full
// referential pre-check. Required references from other rows block the
// delete before anything is removed, unless marked cascade-delete, in which
// case the referencing rows are deleted too. Optional references are
// nullified. A blocked delete leaves no side effects on any row.
func (s *Service) DeleteRecord(ctx context.Context, id types.KID, authData *auth.AuthData) error {
	typ, ok := s.env.TypeByPrefix(id.Prefix())
	if !ok {
		return fmt.Errorf("%w: no type with prefix %s", types.ErrNoSuchType, id.Prefix())
	}

	if err := s.checkDeletePrivileges(ctx, typ, id, authData); err != nil {
		return err
	}

	// Referential pre-check runs over every reference field in the registry
	// before any row is touched.
	var cascades, nullifies []referencingField
	for _, other := range s.env.Types().All() {
		for _, f := range other.Fields() {
			if f.DataType.Kind != types.KindTypeReference || f.DataType.RefTypeID != typ.ID {
				continue
			}
			ref := referencingField{typ: other, field: f}
			switch {
			case f.Required && f.DataType.CascadeDelete:
				cascades = append(cascades, ref)
			case f.Required:
				n, err := s.countReferencing(ctx, ref, id)
				if err != nil {
					return err
				}
				if n > 0 {
					return fmt.Errorf("%w: deleting %s would null required field %s.%s on %d row(s)",
						store.ErrNotNullViolation, id, other.QualifiedName(), f.APIName, n)
				}
			default:
				nullifies = append(nullifies, ref)
			}
		}
	}

	rec := types.NewRecord(typ)
	rec.SetID(id)
	if err := s.triggers.Execute(ctx, typ.ID, true, hooks.OpDelete, []*types.Record{rec}, nil); err != nil {
		return err
	}

	// Cascade-delete referencing rows through the full pipeline so their own
	// triggers and references are honored.
	for _, ref := range cascades {
		childIDs, err := s.referencingIDs(ctx, ref, id)
		if err != nil {
			return err
		}
		for _, childID := range childIDs {
			if err := s.DeleteRecord(ctx, childID, auth.RootAuthData()); err != nil {
				return err
			}
		}
	}
	for _, ref := range nullifies {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1",
			ref.typ.TableName(), ref.field.DBColumn(), ref.field.DBColumn()), id.String())
		if err != nil {
			return store.ConvertDBError(err)
		}
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", typ.TableName()), id.String())
	if err != nil {
		return store.ConvertDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchRecord, id)
	}

	// Sharing rows on the deleted record are dead; drop them.
	if err := s.sharings.UnshareRecordWithAllGroups(ctx, id); err != nil {
		return err
	}
	if err := s.dropDirectSharings(ctx, id); err != nil {
		return err
	}

	if err := s.triggers.Execute(ctx, typ.ID, false, hooks.OpDelete, []*types.Record{rec}, nil); err != nil {
		return err
	}
	s.log.Debug("record deleted", zap.String("type", typ.QualifiedName()), zap.String("id", id.String()))
	return nil
}

func (s *Service) checkDeletePrivileges(ctx context.Context, typ *types.Type, id types.KID, authData *auth.AuthData) error {
	if authData.IsRoot() {
		return nil
	}
	if !authData.CanDeleteType(typ.ID) {
		return auth.ErrInsufficientDeletePrivileges
	}
	if authData.CanDeleteAll(typ.ID) {
		return nil
	}
	ok, err := s.sharings.CanDeleteRecord(ctx, id, authData.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrInsufficientDeletePrivileges
	}
	return nil
}

func (s *Service) countReferencing(ctx context.Context, ref referencingField, id types.KID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1",
		ref.typ.TableName(), ref.field.DBColumn()), id.String()).Scan(&n)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return n, nil
}

func (s *Service) referencingIDs(ctx context.Context, ref referencingField, id types.KID) ([]types.KID, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE %s = $1",
		ref.typ.TableName(), ref.field.DBColumn()), id.String())
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []types.KID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, types.KID(raw))
	}
	return out, rows.Err()
}

func (s *Service) dropDirectSharings(ctx context.Context, id types.KID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+sharing.URSTable+" WHERE record_id = $1", id.String())
	return store.ConvertDBError(err)
}
