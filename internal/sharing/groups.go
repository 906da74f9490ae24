package sharing

import (
	"context"
	"fmt"

	"github.com/kommetio/kommet-core/internal/types"
)

// CreateGroup creates a new, empty user group.
func (s *Service) CreateGroup(ctx context.Context, name string) (*UserGroup, error) {
	id, err := s.store.NextID(ctx, types.UserGroupPrefix)
	if err != nil {
		return nil, err
	}
	g := &UserGroup{ID: id, Name: name}
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes a group, all its assignments and all its record
// sharings. Derived access through the group disappears; the member users
// themselves are untouched.
func (s *Service) DeleteGroup(ctx context.Context, groupID types.KID) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}

	return s.store.InTransaction(ctx, func(st Store) error {
		// record sharings of the group go away together with their derived rows
		shared, err := st.FindGRS(ctx, GRSFilter{GroupID: groupID})
		if err != nil {
			return err
		}
		for _, grs := range shared {
			if err := s.dropGroupSharing(ctx, st, grs); err != nil {
				return err
			}
		}

		// membership links below the group
		below, err := st.FindAssignments(ctx, AssignmentFilter{ParentGroupID: groupID})
		if err != nil {
			return err
		}
		for _, a := range below {
			if err := st.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
		}

		// links that placed the group inside parents; ancestors lose the
		// group's members and must be reconciled
		above, err := st.FindAssignments(ctx, AssignmentFilter{ChildGroupID: groupID})
		if err != nil {
			return err
		}
		parents := make([]types.KID, 0, len(above))
		for _, a := range above {
			if err := st.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
			parents = append(parents, a.ParentGroupID)
		}

		if err := st.DeleteGroup(ctx, groupID); err != nil {
			return err
		}
		for _, parent := range parents {
			if err := s.resyncGroupAndAncestors(ctx, st, parent); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignUserToGroup places a user in a group. Records already shared with the
// group or any of its ancestors become accessible to the user immediately.
func (s *Service) AssignUserToGroup(ctx context.Context, userID, groupID types.KID) (*UserGroupAssignment, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	existing, err := s.store.FindAssignments(ctx, AssignmentFilter{ParentGroupID: groupID, ChildUserID: userID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	id, err := s.store.NextID(ctx, types.UserGroupAssignmentPrefix)
	if err != nil {
		return nil, err
	}
	a := &UserGroupAssignment{ID: id, ParentGroupID: groupID, ChildUserID: userID}
	err = s.store.InTransaction(ctx, func(st Store) error {
		if err := st.SaveAssignment(ctx, a); err != nil {
			return err
		}
		return s.resyncGroupAndAncestors(ctx, st, groupID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UnassignUserFromGroup removes a user from a group, revoking access derived
// through this membership unless another path to the record remains.
func (s *Service) UnassignUserFromGroup(ctx context.Context, userID, groupID types.KID) error {
	found, err := s.store.FindAssignments(ctx, AssignmentFilter{ParentGroupID: groupID, ChildUserID: userID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: user %s in group %s", ErrNoSuchAssignment, userID, groupID)
	}
	return s.store.InTransaction(ctx, func(st Store) error {
		for _, a := range found {
			if err := st.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
		}
		return s.resyncGroupAndAncestors(ctx, st, groupID)
	})
}

// AssignGroupToGroup nests a group inside a parent group. Cycles are rejected
// at assignment time.
func (s *Service) AssignGroupToGroup(ctx context.Context, childGroupID, parentGroupID types.KID) (*UserGroupAssignment, error) {
	if _, err := s.store.GetGroup(ctx, childGroupID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetGroup(ctx, parentGroupID); err != nil {
		return nil, err
	}
	if childGroupID == parentGroupID {
		return nil, fmt.Errorf("%w: cannot assign group %s to itself", ErrGroupCycle, childGroupID)
	}
	ancestors, err := s.ancestors(ctx, s.store, parentGroupID)
	if err != nil {
		return nil, err
	}
	for _, ancestor := range ancestors {
		if ancestor == childGroupID {
			return nil, fmt.Errorf("%w: group %s already contains %s", ErrGroupCycle, childGroupID, parentGroupID)
		}
	}

	existing, err := s.store.FindAssignments(ctx, AssignmentFilter{ParentGroupID: parentGroupID, ChildGroupID: childGroupID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	id, err := s.store.NextID(ctx, types.UserGroupAssignmentPrefix)
	if err != nil {
		return nil, err
	}
	a := &UserGroupAssignment{ID: id, ParentGroupID: parentGroupID, ChildGroupID: childGroupID}
	err = s.store.InTransaction(ctx, func(st Store) error {
		if err := st.SaveAssignment(ctx, a); err != nil {
			return err
		}
		return s.resyncGroupAndAncestors(ctx, st, parentGroupID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UnassignGroupFromGroup removes a subgroup from its parent, revoking access
// its members held only through the parent chain.
func (s *Service) UnassignGroupFromGroup(ctx context.Context, childGroupID, parentGroupID types.KID) error {
	found, err := s.store.FindAssignments(ctx, AssignmentFilter{ParentGroupID: parentGroupID, ChildGroupID: childGroupID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: group %s in group %s", ErrNoSuchAssignment, childGroupID, parentGroupID)
	}
	return s.store.InTransaction(ctx, func(st Store) error {
		for _, a := range found {
			if err := st.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
		}
		return s.resyncGroupAndAncestors(ctx, st, parentGroupID)
	})
}

// resyncGroupAndAncestors reconciles every group sharing on the group and on
// all groups it is (transitively) nested in. Membership changes anywhere
// below a shared group only ever affect sharings on that chain.
func (s *Service) resyncGroupAndAncestors(ctx context.Context, st Store, groupID types.KID) error {
	groups, err := s.ancestors(ctx, st, groupID)
	if err != nil {
		return err
	}
	groups = append(groups, groupID)
	shared, err := st.FindGRS(ctx, GRSFilter{GroupIDs: groups})
	if err != nil {
		return err
	}
	for _, grs := range shared {
		if err := s.syncGroupSharing(ctx, st, grs); err != nil {
			return err
		}
	}
	return nil
}

// ancestors returns every group the given group is transitively nested in,
// excluding the group itself. A visited set guards against graph cycles.
func (s *Service) ancestors(ctx context.Context, st Store, groupID types.KID) ([]types.KID, error) {
	var out []types.KID
	visited := map[types.KID]bool{groupID: true}
	queue := []types.KID{groupID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		links, err := st.FindAssignments(ctx, AssignmentFilter{ChildGroupID: current})
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if visited[link.ParentGroupID] {
				continue
			}
			visited[link.ParentGroupID] = true
			out = append(out, link.ParentGroupID)
			queue = append(queue, link.ParentGroupID)
		}
	}
	return out, nil
}
