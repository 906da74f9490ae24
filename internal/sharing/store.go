package sharing

import (
	"context"

	"github.com/kommetio/kommet-core/internal/types"
)

// Table names of the sharing layer. The query compiler references them when
// injecting sharing restrictions.
const (
	URSTable        = "user_record_sharings"
	GRSTable        = "group_record_sharings"
	GroupTable      = "user_groups"
	AssignmentTable = "user_group_assignments"
)

// URSFilter selects user-record sharing rows.
type URSFilter struct {
	RecordID types.KID
	UserID   types.KID
	// IsGeneric, when non-nil, selects only generic or only derived rows.
	IsGeneric *bool
	// GroupRecordSharingID selects rows derived from one group sharing.
	GroupRecordSharingID types.KID
	// AssignmentID selects rows whose direct assignment or hierarchy
	// involves the given user-group assignment.
	AssignmentID types.KID
}

// GRSFilter selects group-record sharing rows.
type GRSFilter struct {
	RecordID types.KID
	GroupID  types.KID
	GroupIDs []types.KID
}

// AssignmentFilter selects user-group assignment rows.
type AssignmentFilter struct {
	ParentGroupID types.KID
	ChildUserID   types.KID
	ChildGroupID  types.KID
}

// Store is the persistence boundary of the sharing engine. The SQL
// implementation lives in sqlstore.go; tests use an in-memory fake.
type Store interface {
	NextID(ctx context.Context, prefix string) (types.KID, error)

	// InTransaction runs fn against a transactional view of the store. An
	// error from fn discards every write made through that view, so
	// propagation never leaves partial URS/GRS rows behind.
	InTransaction(ctx context.Context, fn func(Store) error) error

	FindURS(ctx context.Context, f URSFilter) ([]*UserRecordSharing, error)
	SaveURS(ctx context.Context, urs *UserRecordSharing) error
	DeleteURS(ctx context.Context, ids []types.KID) error

	FindGRS(ctx context.Context, f GRSFilter) ([]*GroupRecordSharing, error)
	SaveGRS(ctx context.Context, grs *GroupRecordSharing) error
	DeleteGRS(ctx context.Context, ids []types.KID) error

	GetGroup(ctx context.Context, id types.KID) (*UserGroup, error)
	SaveGroup(ctx context.Context, g *UserGroup) error
	DeleteGroup(ctx context.Context, id types.KID) error

	FindAssignments(ctx context.Context, f AssignmentFilter) ([]*UserGroupAssignment, error)
	SaveAssignment(ctx context.Context, a *UserGroupAssignment) error
	DeleteAssignment(ctx context.Context, id types.KID) error
}
