// Package sharing implements record-level access grants: direct user-record
// sharings (URS), group-record sharings (GRS) with propagation to transitive
// group members, and the membership graph of user groups.
package sharing

import (
	"errors"
	"strings"

	"github.com/kommetio/kommet-core/internal/types"
)

// Sharing errors.
var (
	// ErrGroupCycle is returned when a group assignment would create a cycle
	// in the group graph.
	ErrGroupCycle = errors.New("group assignment would create a cycle")

	// ErrNoSuchGroup is returned when a group cannot be found.
	ErrNoSuchGroup = errors.New("no such user group")

	// ErrNoSuchAssignment is returned when a group assignment cannot be found.
	ErrNoSuchAssignment = errors.New("no such group assignment")
)

// UserRecordSharing grants a user access to one record. Generic sharings are
// hand-authored; non-generic ones are derived from group sharings and carry
// the provenance needed to retract exactly them when the group sharing or a
// membership link goes away.
type UserRecordSharing struct {
	ID       types.KID
	RecordID types.KID
	UserID   types.KID

	CanRead   bool
	CanEdit   bool
	CanDelete bool

	Reason    string
	IsGeneric bool

	// Provenance of derived sharings (nil KIDs for generic rows).
	GroupRecordSharingID  types.KID
	UserGroupAssignmentID types.KID
	// GroupSharingHierarchy is the semicolon-joined chain of assignment ids
	// traversed from the shared group down to the user's direct group.
	GroupSharingHierarchy string
}

// GroupRecordSharing grants a group access to one record.
type GroupRecordSharing struct {
	ID       types.KID
	RecordID types.KID
	GroupID  types.KID

	CanEdit   bool
	CanDelete bool
	Reason    string
}

// UserGroup is a named group. Groups form a DAG through assignments.
type UserGroup struct {
	ID   types.KID
	Name string
}

// UserGroupAssignment places a user or a subgroup inside a parent group.
// Exactly one of ChildUserID and ChildGroupID is set.
type UserGroupAssignment struct {
	ID            types.KID
	ParentGroupID types.KID
	ChildUserID   types.KID
	ChildGroupID  types.KID
}

// IsUserAssignment reports whether the assignment places a user (rather than
// a subgroup) in the parent group.
func (a *UserGroupAssignment) IsUserAssignment() bool {
	return !a.ChildUserID.IsNil()
}

// memberPath is one way a user is reachable from a shared group: the user's
// direct assignment plus the chain of group-in-group assignments above it.
type memberPath struct {
	userID    types.KID
	directUGA types.KID
	hierarchy []types.KID
}

func (p memberPath) hierarchyString() string {
	if len(p.hierarchy) == 0 {
		return ""
	}
	parts := make([]string, len(p.hierarchy))
	for i, id := range p.hierarchy {
		parts[i] = id.String()
	}
	return strings.Join(parts, ";")
}

// derivedKey identifies one derived URS row within a group sharing.
type derivedKey struct {
	userID    types.KID
	directUGA types.KID
	hierarchy string
}
