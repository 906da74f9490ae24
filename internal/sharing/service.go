package sharing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/types"
)

// Service implements the sharing API. All group-sharing propagation goes
// through syncGroupSharing, which reconciles the derived URS rows of one GRS
// against the current membership closure, so retraction is always exact:
// hand-authored generic sharings are never touched by group operations.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a sharing service.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// ShareRecord grants a user direct access to a record. Sharing is idempotent
// per (record, user): re-sharing updates the flags on the existing grant
// instead of duplicating it.
func (s *Service) ShareRecord(ctx context.Context, recordID, userID types.KID, canEdit, canDelete bool, reason string, isGeneric bool) (*UserRecordSharing, error) {
	if recordID.IsNil() {
		return nil, fmt.Errorf("trying to create a sharing for a nil record id")
	}
	if userID.IsNil() {
		return nil, fmt.Errorf("trying to create a sharing for a nil user id")
	}

	generic := true
	existing, err := s.store.FindURS(ctx, URSFilter{RecordID: recordID, UserID: userID, IsGeneric: &generic})
	if err != nil {
		return nil, err
	}

	var urs *UserRecordSharing
	if len(existing) > 0 {
		urs = existing[0]
	} else {
		id, err := s.store.NextID(ctx, types.UserRecordSharingPrefix)
		if err != nil {
			return nil, err
		}
		urs = &UserRecordSharing{ID: id, RecordID: recordID, UserID: userID}
	}
	urs.CanRead = true
	urs.CanEdit = canEdit
	urs.CanDelete = canDelete
	urs.Reason = reason
	urs.IsGeneric = isGeneric
	if err := s.store.SaveURS(ctx, urs); err != nil {
		return nil, err
	}
	return urs, nil
}

// UnshareRecord removes the direct (generic) sharings of a record, for one
// user or for all users when userID is nil. Sharings derived from group
// propagation are left alone; they go away with their group sharing.
func (s *Service) UnshareRecord(ctx context.Context, recordID, userID types.KID) error {
	generic := true
	rows, err := s.store.FindURS(ctx, URSFilter{RecordID: recordID, UserID: userID, IsGeneric: &generic})
	if err != nil {
		return err
	}
	return s.store.DeleteURS(ctx, ursIDs(rows))
}

// ShareRecordWithGroup grants a group access to a record and materializes one
// derived URS per transitive group member. Re-sharing the same (record, group)
// updates the existing grant and reconciles the derived rows.
func (s *Service) ShareRecordWithGroup(ctx context.Context, recordID, groupID types.KID, canEdit, canDelete bool, reason string) (*GroupRecordSharing, error) {
	if recordID.IsNil() {
		return nil, fmt.Errorf("trying to create a sharing for a nil record id")
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	var grs *GroupRecordSharing
	err := s.store.InTransaction(ctx, func(st Store) error {
		existing, err := st.FindGRS(ctx, GRSFilter{RecordID: recordID, GroupID: groupID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			grs = existing[0]
		} else {
			id, err := st.NextID(ctx, types.GroupRecordSharingPrefix)
			if err != nil {
				return err
			}
			grs = &GroupRecordSharing{ID: id, RecordID: recordID, GroupID: groupID}
		}
		grs.CanEdit = canEdit
		grs.CanDelete = canDelete
		grs.Reason = reason
		if err := st.SaveGRS(ctx, grs); err != nil {
			return err
		}
		return s.syncGroupSharing(ctx, st, grs)
	})
	if err != nil {
		return nil, err
	}
	return grs, nil
}

// UnshareRecordWithGroup retracts a group sharing together with exactly the
// URS rows it had derived.
func (s *Service) UnshareRecordWithGroup(ctx context.Context, recordID, groupID types.KID) error {
	return s.store.InTransaction(ctx, func(st Store) error {
		found, err := st.FindGRS(ctx, GRSFilter{RecordID: recordID, GroupID: groupID})
		if err != nil {
			return err
		}
		for _, grs := range found {
			if err := s.dropGroupSharing(ctx, st, grs); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnshareRecordWithAllGroups retracts every group sharing of the record.
func (s *Service) UnshareRecordWithAllGroups(ctx context.Context, recordID types.KID) error {
	return s.store.InTransaction(ctx, func(st Store) error {
		found, err := st.FindGRS(ctx, GRSFilter{RecordID: recordID})
		if err != nil {
			return err
		}
		for _, grs := range found {
			if err := s.dropGroupSharing(ctx, st, grs); err != nil {
				return err
			}
		}
		return nil
	})
}

// CanViewRecord reports whether the user holds any sharing (direct or
// derived) granting read on the record.
func (s *Service) CanViewRecord(ctx context.Context, recordID, userID types.KID) (bool, error) {
	rows, err := s.store.FindURS(ctx, URSFilter{RecordID: recordID, UserID: userID})
	if err != nil {
		return false, err
	}
	for _, urs := range rows {
		if urs.CanRead {
			return true, nil
		}
	}
	return false, nil
}

// CanEditRecord reports whether the user holds any sharing granting edit.
func (s *Service) CanEditRecord(ctx context.Context, recordID, userID types.KID) (bool, error) {
	rows, err := s.store.FindURS(ctx, URSFilter{RecordID: recordID, UserID: userID})
	if err != nil {
		return false, err
	}
	for _, urs := range rows {
		if urs.CanEdit {
			return true, nil
		}
	}
	return false, nil
}

// CanDeleteRecord reports whether the user holds any sharing granting delete.
func (s *Service) CanDeleteRecord(ctx context.Context, recordID, userID types.KID) (bool, error) {
	rows, err := s.store.FindURS(ctx, URSFilter{RecordID: recordID, UserID: userID})
	if err != nil {
		return false, err
	}
	for _, urs := range rows {
		if urs.CanDelete {
			return true, nil
		}
	}
	return false, nil
}

// CanGroupViewRecord reports whether the record was shared directly with the
// group. Ancestors and descendants of a shared group report false, even
// though their member users do inherit access.
func (s *Service) CanGroupViewRecord(ctx context.Context, recordID, groupID types.KID) (bool, error) {
	found, err := s.store.FindGRS(ctx, GRSFilter{RecordID: recordID, GroupID: groupID})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// CanGroupEditRecord reports whether the record was shared directly with the
// group with the edit flag.
func (s *Service) CanGroupEditRecord(ctx context.Context, recordID, groupID types.KID) (bool, error) {
	found, err := s.store.FindGRS(ctx, GRSFilter{RecordID: recordID, GroupID: groupID})
	if err != nil {
		return false, err
	}
	for _, grs := range found {
		if grs.CanEdit {
			return true, nil
		}
	}
	return false, nil
}

// dropGroupSharing deletes a GRS and exactly its derived URS rows.
func (s *Service) dropGroupSharing(ctx context.Context, st Store, grs *GroupRecordSharing) error {
	derived, err := st.FindURS(ctx, URSFilter{GroupRecordSharingID: grs.ID})
	if err != nil {
		return err
	}
	if err := st.DeleteURS(ctx, ursIDs(derived)); err != nil {
		return err
	}
	return st.DeleteGRS(ctx, []types.KID{grs.ID})
}

// syncGroupSharing reconciles the derived URS rows of one group sharing
// against the current membership closure of the shared group. Rows for paths
// that no longer exist are deleted; new paths get new rows; surviving rows
// get their flags refreshed.
func (s *Service) syncGroupSharing(ctx context.Context, st Store, grs *GroupRecordSharing) error {
	paths, err := s.memberPaths(ctx, st, grs.GroupID)
	if err != nil {
		return err
	}
	desired := make(map[derivedKey]memberPath, len(paths))
	for _, p := range paths {
		desired[derivedKey{userID: p.userID, directUGA: p.directUGA, hierarchy: p.hierarchyString()}] = p
	}

	existing, err := st.FindURS(ctx, URSFilter{GroupRecordSharingID: grs.ID})
	if err != nil {
		return err
	}

	var stale []types.KID
	matched := make(map[derivedKey]bool)
	for _, urs := range existing {
		key := derivedKey{userID: urs.UserID, directUGA: urs.UserGroupAssignmentID, hierarchy: urs.GroupSharingHierarchy}
		if _, wanted := desired[key]; !wanted {
			stale = append(stale, urs.ID)
			continue
		}
		matched[key] = true
		if urs.CanEdit != grs.CanEdit || urs.CanDelete != grs.CanDelete || urs.Reason != grs.Reason {
			urs.CanEdit = grs.CanEdit
			urs.CanDelete = grs.CanDelete
			urs.Reason = grs.Reason
			if err := st.SaveURS(ctx, urs); err != nil {
				return err
			}
		}
	}
	if err := st.DeleteURS(ctx, stale); err != nil {
		return err
	}

	for key, p := range desired {
		if matched[key] {
			continue
		}
		id, err := st.NextID(ctx, types.UserRecordSharingPrefix)
		if err != nil {
			return err
		}
		urs := &UserRecordSharing{
			ID:                    id,
			RecordID:              grs.RecordID,
			UserID:                p.userID,
			CanRead:               true,
			CanEdit:               grs.CanEdit,
			CanDelete:             grs.CanDelete,
			Reason:                grs.Reason,
			IsGeneric:             false,
			GroupRecordSharingID:  grs.ID,
			UserGroupAssignmentID: p.directUGA,
			GroupSharingHierarchy: p.hierarchyString(),
		}
		if err := st.SaveURS(ctx, urs); err != nil {
			return err
		}
	}

	s.log.Debug("group sharing synchronized",
		zap.String("grs", grs.ID.String()),
		zap.String("record", grs.RecordID.String()),
		zap.Int("members", len(desired)))
	return nil
}

// memberPaths computes every path from the group down to a member user. A
// visited set guards against cycles in a corrupted membership graph.
func (s *Service) memberPaths(ctx context.Context, st Store, groupID types.KID) ([]memberPath, error) {
	var out []memberPath
	visited := map[types.KID]bool{groupID: true}

	var walk func(group types.KID, chain []types.KID) error
	walk = func(group types.KID, chain []types.KID) error {
		assignments, err := st.FindAssignments(ctx, AssignmentFilter{ParentGroupID: group})
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if a.IsUserAssignment() {
				hierarchy := make([]types.KID, len(chain))
				copy(hierarchy, chain)
				out = append(out, memberPath{userID: a.ChildUserID, directUGA: a.ID, hierarchy: hierarchy})
				continue
			}
			if visited[a.ChildGroupID] {
				continue
			}
			visited[a.ChildGroupID] = true
			if err := walk(a.ChildGroupID, append(chain, a.ID)); err != nil {
				return err
			}
			delete(visited, a.ChildGroupID)
		}
		return nil
	}
	if err := walk(groupID, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func ursIDs(rows []*UserRecordSharing) []types.KID {
	ids := make([]types.KID, 0, len(rows))
	for _, urs := range rows {
		ids = append(ids, urs.ID)
	}
	return ids
}
