// Package data implements the persistence pipeline: profile and sharing-gated
// saves and deletes, lifecycle triggers, validation rules, field history, and
// the DDL behind runtime type and field creation.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/auth"
	"github.com/kommetio/kommet-core/internal/env"
	"github.com/kommetio/kommet-core/internal/hooks"
	"github.com/kommetio/kommet-core/internal/query"
	"github.com/kommetio/kommet-core/internal/sharing"
	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
	"github.com/kommetio/kommet-core/internal/validation"
)

var (
	// ErrRequiredFieldMissing is returned when a required field has no value
	// on save.
	ErrRequiredFieldMissing = errors.New("required field has no value")

	// ErrNoSuchRecord is returned when an operation targets an identifier
	// with no backing row.
	ErrNoSuchRecord = errors.New("record not found")
)

// Service runs every record save and delete through the full pipeline.
type Service struct {
	env      *env.Env
	db       *sql.DB
	tx       *store.TxManager
	seq      *store.SequenceAllocator
	queries  *query.Executor
	triggers *hooks.Executor
	rules    *validation.Engine
	sharings *sharing.Service
	log      *zap.Logger
}

// NewService wires the pipeline together.
func NewService(e *env.Env, db *sql.DB, triggers *hooks.Executor, rules *validation.Engine, sharings *sharing.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		env:      e,
		db:       db,
		tx:       store.NewTxManager(db),
		seq:      store.NewSequenceAllocator(db),
		queries:  query.NewExecutor(db, e, log),
		triggers: triggers,
		rules:    rules,
		sharings: sharings,
		log:      log,
	}
}

// Sequences exposes the identifier allocator, for callers that create
// metadata rows (users, profiles, labels) directly.
func (s *Service) Sequences() *store.SequenceAllocator {
	return s.seq
}

// SaveOptions tune a single save call.
type SaveOptions struct {
	// SkipRequiredCheck bypasses required-field enforcement, for system
	// writes that fill fields incrementally.
	SkipRequiredCheck bool
	// SkipTriggers suppresses trigger execution, for engine-internal rows.
	SkipTriggers bool
}

// Save inserts or updates a record with full gating: profile permissions,
// record-level grants, before triggers, required fields, validation rules,
// persistence, field history, after triggers. The record is mutated in
// place: trigger changes and the assigned identifier are visible on return.
func (s *Service) Save(ctx context.Context, rec *types.Record, authData *auth.AuthData) error {
	return s.SaveWithOptions(ctx, rec, authData, SaveOptions{})
}

// SaveWithOptions is Save with explicit pipeline options.
func (s *Service) SaveWithOptions(ctx context.Context, rec *types.Record, authData *auth.AuthData, opts SaveOptions) error {
	typ := rec.Type()
	isNew := rec.ID().IsNil()

	if err := s.checkSavePrivileges(ctx, rec, typ, isNew, authData); err != nil {
		return err
	}

	// Pre-change snapshot, loaded once and reused for old-value injection
	// and field history.
	var oldRec *types.Record
	if !isNew && (s.triggers.AnyOldValuesRequested(typ.ID) || anyTrackedField(typ)) {
		var err error
		oldRec, err = s.loadRecord(ctx, typ, rec.ID())
		if err != nil {
			return err
		}
	}

	op := hooks.OpUpdate
	if isNew {
		op = hooks.OpInsert
	}
	if !opts.SkipTriggers {
		if err := s.triggers.Execute(ctx, typ.ID, true, op, []*types.Record{rec}, oldValueMap(rec, oldRec, isNew)); err != nil {
			return err
		}
	}

	if !opts.SkipRequiredCheck {
		if err := checkRequiredFields(rec, typ, isNew); err != nil {
			return err
		}
	}

	if err := s.rules.Evaluate(rec, typ.ID); err != nil {
		return err
	}

	if isNew {
		if err := s.insert(ctx, rec, typ, authData); err != nil {
			return err
		}
	} else {
		if err := s.update(ctx, rec, typ, authData); err != nil {
			return err
		}
		if err := s.writeFieldHistory(ctx, typ, rec, oldRec); err != nil {
			return err
		}
	}

	if !opts.SkipTriggers {
		if err := s.triggers.Execute(ctx, typ.ID, false, op, []*types.Record{rec}, oldValueMap(rec, oldRec, isNew)); err != nil {
			return err
		}
	}
	return nil
}

// checkSavePrivileges enforces create/edit gating. Existing records need
// profile edit plus either editAll or a record-level edit grant; system
// rows reject normal edits outright.
func (s *Service) checkSavePrivileges(ctx context.Context, rec *types.Record, typ *types.Type, isNew bool, authData *auth.AuthData) error {
	if authData.IsRoot() {
		return nil
	}
	if isNew {
		if !authData.CanCreateType(typ.ID) {
			return auth.ErrInsufficientCreatePrivileges
		}
		return nil
	}

	if rec.AccessType() == types.AccessSystem {
		return types.ErrImmutableAccessType
	}
	if !authData.CanEditType(typ.ID) {
		return auth.ErrInsufficientEditPrivileges
	}
	if authData.CanEditAll(typ.ID) {
		return nil
	}
	ok, err := s.canEditThroughSharing(ctx, typ, rec.ID(), authData.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrInsufficientEditPrivileges
	}
	return nil
}

// canEditThroughSharing resolves a record-level edit grant, following the
// type's controlled-by delegation when configured.
func (s *Service) canEditThroughSharing(ctx context.Context, typ *types.Type, recordID, userID types.KID) (bool, error) {
	if typ.SharingControlledByField != "" {
		controllingID, err := s.controllingRecordID(ctx, typ, recordID)
		if err != nil {
			return false, err
		}
		if !controllingID.IsNil() {
			ok, err := s.sharings.CanEditRecord(ctx, controllingID, userID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		if !typ.CombineRecordAndCascadeSharing {
			return false, nil
		}
	}
	return s.sharings.CanEditRecord(ctx, recordID, userID)
}

// controllingRecordID reads the value of the type's sharing-controlled-by
// column for a row.
func (s *Service) controllingRecordID(ctx context.Context, typ *types.Type, recordID types.KID) (types.KID, error) {
	f, ok := typ.Field(typ.SharingControlledByField)
	if !ok {
		return types.NilKID, fmt.Errorf("%w: %s on type %s", types.ErrNoSuchField, typ.SharingControlledByField, typ.QualifiedName())
	}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", f.DBColumn(), typ.TableName()),
		recordID.String()).Scan(&raw)
	if err == sql.ErrNoRows {
		return types.NilKID, fmt.Errorf("%w: %s", ErrNoSuchRecord, recordID)
	}
	if err != nil {
		return types.NilKID, store.ConvertDBError(err)
	}
	if !raw.Valid {
		return types.NilKID, nil
	}
	return types.ParseKID(raw.String)
}

func checkRequiredFields(rec *types.Record, typ *types.Type, isNew bool) error {
	for _, f := range typ.Fields() {
		if !f.Required || f.System || f.DataType.IsCollection() {
			continue
		}
		if !rec.IsSet(f.APIName) {
			if isNew {
				return fmt.Errorf("%w: %s on type %s", ErrRequiredFieldMissing, f.APIName, typ.QualifiedName())
			}
			continue
		}
		v, err := rec.GetField(f.APIName)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("%w: %s on type %s", ErrRequiredFieldMissing, f.APIName, typ.QualifiedName())
		}
	}
	return nil
}

// anyTrackedField reports whether the type tracks history on any field.
func anyTrackedField(typ *types.Type) bool {
	for _, f := range typ.Fields() {
		if f.TrackHistory {
			return true
		}
	}
	return false
}

// oldValueMap wraps the snapshot for trigger injection: nil on insert, since
// there is no old state.
func oldValueMap(rec *types.Record, oldRec *types.Record, isNew bool) map[types.KID]*types.Record {
	if isNew || oldRec == nil {
		return nil
	}
	return map[types.KID]*types.Record{rec.ID(): oldRec}
}

func (s *Service) insert(ctx context.Context, rec *types.Record, typ *types.Type, authData *auth.AuthData) error {
	id, err := s.seq.Next(ctx, typ.KeyPrefix)
	if err != nil {
		return err
	}
	rec.SetID(id)

	now := time.Now().UTC()
	if err := setSystemValues(rec, map[string]any{
		types.CreatedDateField:      now,
		types.CreatedByField:        authData.UserID,
		types.LastModifiedDateField: now,
		types.LastModifiedByField:   authData.UserID,
		types.TriggerFlagField:      s.env.Triggers().HasTriggers(typ.ID),
	}, s.env); err != nil {
		return err
	}

	var cols, placeholders []string
	var args []any
	for _, f := range typ.Fields() {
		if f.DataType.IsCollection() || !rec.IsSet(f.APIName) {
			continue
		}
		v, err := rec.GetField(f.APIName)
		if err != nil {
			return err
		}
		cols = append(cols, f.DBColumn())
		args = append(args, toDBValue(v))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		typ.TableName(), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return store.ConvertDBError(err)
	}
	s.log.Debug("record inserted", zap.String("type", typ.QualifiedName()), zap.String("id", id.String()))
	return nil
}

func (s *Service) update(ctx context.Context, rec *types.Record, typ *types.Type, authData *auth.AuthData) error {
	if err := setSystemValues(rec, map[string]any{
		types.LastModifiedDateField: time.Now().UTC(),
		types.LastModifiedByField:   authData.UserID,
	}, s.env); err != nil {
		return err
	}

	var sets []string
	var args []any
	for _, f := range typ.Fields() {
		if f.DataType.IsCollection() || f.APIName == types.IDField || !rec.IsSet(f.APIName) {
			continue
		}
		// Creation audit fields never change on update.
		if f.APIName == types.CreatedDateField || f.APIName == types.CreatedByField {
			continue
		}
		v, err := rec.GetField(f.APIName)
		if err != nil {
			return err
		}
		args = append(args, toDBValue(v))
		sets = append(sets, fmt.Sprintf("%s = $%d", f.DBColumn(), len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, rec.ID().String())
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", typ.TableName(), strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return store.ConvertDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchRecord, rec.ID())
	}
	return nil
}

func setSystemValues(rec *types.Record, values map[string]any, resolver types.TypeResolver) error {
	for name, v := range values {
		if err := rec.SetField(name, v, resolver); err != nil {
			return err
		}
	}
	return nil
}

// loadRecord fetches the current row of a record with all scalar fields.
func (s *Service) loadRecord(ctx context.Context, typ *types.Type, id types.KID) (*types.Record, error) {
	c := query.NewCriteria(typ, s.env)
	for _, f := range typ.Fields() {
		if f.DataType.IsCollection() {
			continue
		}
		if f.DataType.Kind == types.KindTypeReference {
			c.AddProperty(f.APIName + "." + types.IDField)
			continue
		}
		c.AddProperty(f.APIName)
	}
	c.Add(query.Eq(types.IDField, id))
	records, err := s.queries.List(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRecord, id)
	}
	return records[0], nil
}

// toDBValue converts a field value to its driver representation.
func toDBValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case types.KID:
		return val.String()
	case *types.Record:
		if val.IsNullified() {
			return nil
		}
		return val.ID().String()
	case decimal.Decimal:
		return val.String()
	case types.RecordAccessType:
		return int64(val)
	default:
		return v
	}
}
