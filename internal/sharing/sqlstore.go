package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
)

// dbtx is the statement surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the database-backed implementation of Store.
type SQLStore struct {
	db  dbtx
	seq *store.SequenceAllocator
	// txm is nil on transactional views; InTransaction does not nest.
	txm *store.TxManager
}

// NewSQLStore creates a SQL-backed sharing store.
func NewSQLStore(db *sql.DB, seq *store.SequenceAllocator) *SQLStore {
	return &SQLStore{db: db, seq: seq, txm: store.NewTxManager(db)}
}

// InTransaction runs fn against a store view bound to one transaction. On a
// store that is already transactional, fn joins the open transaction.
func (s *SQLStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	if s.txm == nil {
		return fn(s)
	}
	return s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&SQLStore{db: tx, seq: s.seq})
	})
}

// Schema returns the DDL of the sharing tables.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + URSTable + ` (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			can_read BOOLEAN NOT NULL DEFAULT TRUE,
			can_edit BOOLEAN NOT NULL DEFAULT FALSE,
			can_delete BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			is_generic BOOLEAN NOT NULL DEFAULT TRUE,
			group_record_sharing_id TEXT,
			user_group_assignment_id TEXT,
			group_sharing_hierarchy TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_urs_record_user ON ` + URSTable + ` (record_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_urs_grs ON ` + URSTable + ` (group_record_sharing_id)`,
		`CREATE TABLE IF NOT EXISTS ` + GRSTable + ` (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			can_edit BOOLEAN NOT NULL DEFAULT FALSE,
			can_delete BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grs_record ON ` + GRSTable + ` (record_id)`,
		`CREATE TABLE IF NOT EXISTS ` + GroupTable + ` (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + AssignmentTable + ` (
			id TEXT PRIMARY KEY,
			parent_group_id TEXT NOT NULL,
			child_user_id TEXT,
			child_group_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uga_parent ON ` + AssignmentTable + ` (parent_group_id)`,
	}
}

// NextID allocates the next identifier for the given key prefix.
func (s *SQLStore) NextID(ctx context.Context, prefix string) (types.KID, error) {
	return s.seq.Next(ctx, prefix)
}

const ursColumns = `id, record_id, user_id, can_read, can_edit, can_delete, reason, is_generic,
	group_record_sharing_id, user_group_assignment_id, group_sharing_hierarchy`

// FindURS selects user-record sharing rows matching the filter.
func (s *SQLStore) FindURS(ctx context.Context, f URSFilter) ([]*UserRecordSharing, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.RecordID.IsNil() {
		add("record_id = $%d", f.RecordID.String())
	}
	if !f.UserID.IsNil() {
		add("user_id = $%d", f.UserID.String())
	}
	if f.IsGeneric != nil {
		add("is_generic = $%d", *f.IsGeneric)
	}
	if !f.GroupRecordSharingID.IsNil() {
		add("group_record_sharing_id = $%d", f.GroupRecordSharingID.String())
	}
	if !f.AssignmentID.IsNil() {
		args = append(args, f.AssignmentID.String(), "%"+f.AssignmentID.String()+"%")
		conds = append(conds, fmt.Sprintf("(user_group_assignment_id = $%d OR group_sharing_hierarchy LIKE $%d)", len(args)-1, len(args)))
	}
	queryText := "SELECT " + ursColumns + " FROM " + URSTable
	if len(conds) > 0 {
		queryText += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, queryText, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []*UserRecordSharing
	for rows.Next() {
		var urs UserRecordSharing
		var id, recordID, userID string
		var reason, grsID, ugaID, hierarchy sql.NullString
		if err := rows.Scan(&id, &recordID, &userID, &urs.CanRead, &urs.CanEdit, &urs.CanDelete,
			&reason, &urs.IsGeneric, &grsID, &ugaID, &hierarchy); err != nil {
			return nil, err
		}
		urs.ID = types.KID(id)
		urs.RecordID = types.KID(recordID)
		urs.UserID = types.KID(userID)
		urs.Reason = reason.String
		urs.GroupRecordSharingID = types.KID(grsID.String)
		urs.UserGroupAssignmentID = types.KID(ugaID.String)
		urs.GroupSharingHierarchy = hierarchy.String
		out = append(out, &urs)
	}
	return out, rows.Err()
}

// SaveURS inserts or updates a user-record sharing row by identifier.
func (s *SQLStore) SaveURS(ctx context.Context, urs *UserRecordSharing) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+URSTable+` (`+ursColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			can_read = EXCLUDED.can_read,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			reason = EXCLUDED.reason,
			is_generic = EXCLUDED.is_generic`,
		urs.ID.String(), urs.RecordID.String(), urs.UserID.String(),
		urs.CanRead, urs.CanEdit, urs.CanDelete,
		nullable(urs.Reason), urs.IsGeneric,
		nullable(urs.GroupRecordSharingID.String()),
		nullable(urs.UserGroupAssignmentID.String()),
		nullable(urs.GroupSharingHierarchy))
	return store.ConvertDBError(err)
}

// DeleteURS removes sharing rows by identifier.
func (s *SQLStore) DeleteURS(ctx context.Context, ids []types.KID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM "+URSTable+" WHERE id IN ("+strings.Join(placeholders, ", ")+")", args...)
	return store.ConvertDBError(err)
}

// FindGRS selects group-record sharing rows matching the filter.
func (s *SQLStore) FindGRS(ctx context.Context, f GRSFilter) ([]*GroupRecordSharing, error) {
	var conds []string
	var args []any
	if !f.RecordID.IsNil() {
		args = append(args, f.RecordID.String())
		conds = append(conds, fmt.Sprintf("record_id = $%d", len(args)))
	}
	if !f.GroupID.IsNil() {
		args = append(args, f.GroupID.String())
		conds = append(conds, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if len(f.GroupIDs) > 0 {
		placeholders := make([]string, len(f.GroupIDs))
		for i, id := range f.GroupIDs {
			args = append(args, id.String())
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "group_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	queryText := "SELECT id, record_id, group_id, can_edit, can_delete, reason FROM " + GRSTable
	if len(conds) > 0 {
		queryText += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, queryText, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []*GroupRecordSharing
	for rows.Next() {
		var grs GroupRecordSharing
		var id, recordID, groupID string
		var reason sql.NullString
		if err := rows.Scan(&id, &recordID, &groupID, &grs.CanEdit, &grs.CanDelete, &reason); err != nil {
			return nil, err
		}
		grs.ID = types.KID(id)
		grs.RecordID = types.KID(recordID)
		grs.GroupID = types.KID(groupID)
		grs.Reason = reason.String
		out = append(out, &grs)
	}
	return out, rows.Err()
}

// SaveGRS inserts or updates a group-record sharing row by identifier.
func (s *SQLStore) SaveGRS(ctx context.Context, grs *GroupRecordSharing) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+GRSTable+` (id, record_id, group_id, can_edit, can_delete, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			reason = EXCLUDED.reason`,
		grs.ID.String(), grs.RecordID.String(), grs.GroupID.String(),
		grs.CanEdit, grs.CanDelete, nullable(grs.Reason))
	return store.ConvertDBError(err)
}

// DeleteGRS removes group sharing rows by identifier.
func (s *SQLStore) DeleteGRS(ctx context.Context, ids []types.KID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM "+GRSTable+" WHERE id IN ("+strings.Join(placeholders, ", ")+")", args...)
	return store.ConvertDBError(err)
}

// GetGroup loads a group by identifier.
func (s *SQLStore) GetGroup(ctx context.Context, id types.KID) (*UserGroup, error) {
	var g UserGroup
	var gid string
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM "+GroupTable+" WHERE id = $1", id.String()).
		Scan(&gid, &g.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchGroup, id)
	}
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	g.ID = types.KID(gid)
	return &g, nil
}

// SaveGroup inserts or updates a group.
func (s *SQLStore) SaveGroup(ctx context.Context, g *UserGroup) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+GroupTable+` (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		g.ID.String(), g.Name)
	return store.ConvertDBError(err)
}

// DeleteGroup removes a group row.
func (s *SQLStore) DeleteGroup(ctx context.Context, id types.KID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+GroupTable+" WHERE id = $1", id.String())
	return store.ConvertDBError(err)
}

// FindAssignments selects membership rows matching the filter.
func (s *SQLStore) FindAssignments(ctx context.Context, f AssignmentFilter) ([]*UserGroupAssignment, error) {
	var conds []string
	var args []any
	if !f.ParentGroupID.IsNil() {
		args = append(args, f.ParentGroupID.String())
		conds = append(conds, fmt.Sprintf("parent_group_id = $%d", len(args)))
	}
	if !f.ChildUserID.IsNil() {
		args = append(args, f.ChildUserID.String())
		conds = append(conds, fmt.Sprintf("child_user_id = $%d", len(args)))
	}
	if !f.ChildGroupID.IsNil() {
		args = append(args, f.ChildGroupID.String())
		conds = append(conds, fmt.Sprintf("child_group_id = $%d", len(args)))
	}
	queryText := "SELECT id, parent_group_id, child_user_id, child_group_id FROM " + AssignmentTable
	if len(conds) > 0 {
		queryText += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, queryText, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []*UserGroupAssignment
	for rows.Next() {
		var a UserGroupAssignment
		var id, parent string
		var childUser, childGroup sql.NullString
		if err := rows.Scan(&id, &parent, &childUser, &childGroup); err != nil {
			return nil, err
		}
		a.ID = types.KID(id)
		a.ParentGroupID = types.KID(parent)
		a.ChildUserID = types.KID(childUser.String)
		a.ChildGroupID = types.KID(childGroup.String)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAssignment inserts a membership row.
func (s *SQLStore) SaveAssignment(ctx context.Context, a *UserGroupAssignment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+AssignmentTable+` (id, parent_group_id, child_user_id, child_group_id)
		VALUES ($1, $2, $3, $4)`,
		a.ID.String(), a.ParentGroupID.String(),
		nullable(a.ChildUserID.String()), nullable(a.ChildGroupID.String()))
	return store.ConvertDBError(err)
}

// DeleteAssignment removes a membership row.
func (s *SQLStore) DeleteAssignment(ctx context.Context, id types.KID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+AssignmentTable+" WHERE id = $1", id.String())
	return store.ConvertDBError(err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
