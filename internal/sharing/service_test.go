package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/types"
)

// memStore is an in-memory Store used to test the sharing engine without a
// database. Filter semantics mirror sqlstore.go.
type memStore struct {
	seq         map[string]int64
	urs         map[types.KID]*UserRecordSharing
	grs         map[types.KID]*GroupRecordSharing
	groups      map[types.KID]*UserGroup
	assignments map[types.KID]*UserGroupAssignment
}

func newMemStore() *memStore {
	return &memStore{
		seq:         map[string]int64{},
		urs:         map[types.KID]*UserRecordSharing{},
		grs:         map[types.KID]*GroupRecordSharing{},
		groups:      map[types.KID]*UserGroup{},
		assignments: map[types.KID]*UserGroupAssignment{},
	}
}

func (m *memStore) NextID(_ context.Context, prefix string) (types.KID, error) {
	m.seq[prefix]++
	return types.NewKID(prefix, m.seq[prefix])
}

// InTransaction mirrors the SQL store's contract: an error from fn restores
// the pre-transaction state.
func (m *memStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) snapshot() *memStore {
	snap := newMemStore()
	for k, v := range m.seq {
		snap.seq[k] = v
	}
	for k, v := range m.urs {
		cp := *v
		snap.urs[k] = &cp
	}
	for k, v := range m.grs {
		cp := *v
		snap.grs[k] = &cp
	}
	for k, v := range m.groups {
		cp := *v
		snap.groups[k] = &cp
	}
	for k, v := range m.assignments {
		cp := *v
		snap.assignments[k] = &cp
	}
	return snap
}

func (m *memStore) restore(snap *memStore) {
	m.seq = snap.seq
	m.urs = snap.urs
	m.grs = snap.grs
	m.groups = snap.groups
	m.assignments = snap.assignments
}

func (m *memStore) FindURS(_ context.Context, f URSFilter) ([]*UserRecordSharing, error) {
	var out []*UserRecordSharing
	for _, urs := range m.urs {
		if !f.RecordID.IsNil() && urs.RecordID != f.RecordID {
			continue
		}
		if !f.UserID.IsNil() && urs.UserID != f.UserID {
			continue
		}
		if f.IsGeneric != nil && urs.IsGeneric != *f.IsGeneric {
			continue
		}
		if !f.GroupRecordSharingID.IsNil() && urs.GroupRecordSharingID != f.GroupRecordSharingID {
			continue
		}
		if !f.AssignmentID.IsNil() &&
			urs.UserGroupAssignmentID != f.AssignmentID &&
			!strings.Contains(urs.GroupSharingHierarchy, f.AssignmentID.String()) {
			continue
		}
		out = append(out, urs)
	}
	return out, nil
}

func (m *memStore) SaveURS(_ context.Context, urs *UserRecordSharing) error {
	cp := *urs
	m.urs[urs.ID] = &cp
	return nil
}

func (m *memStore) DeleteURS(_ context.Context, ids []types.KID) error {
	for _, id := range ids {
		delete(m.urs, id)
	}
	return nil
}

func (m *memStore) FindGRS(_ context.Context, f GRSFilter) ([]*GroupRecordSharing, error) {
	var out []*GroupRecordSharing
	for _, grs := range m.grs {
		if !f.RecordID.IsNil() && grs.RecordID != f.RecordID {
			continue
		}
		if !f.GroupID.IsNil() && grs.GroupID != f.GroupID {
			continue
		}
		if len(f.GroupIDs) > 0 && !containsKID(f.GroupIDs, grs.GroupID) {
			continue
		}
		out = append(out, grs)
	}
	return out, nil
}

func (m *memStore) SaveGRS(_ context.Context, grs *GroupRecordSharing) error {
	cp := *grs
	m.grs[grs.ID] = &cp
	return nil
}

func (m *memStore) DeleteGRS(_ context.Context, ids []types.KID) error {
	for _, id := range ids {
		delete(m.grs, id)
	}
	return nil
}

func (m *memStore) GetGroup(_ context.Context, id types.KID) (*UserGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchGroup, id)
	}
	return g, nil
}

func (m *memStore) SaveGroup(_ context.Context, g *UserGroup) error {
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *memStore) DeleteGroup(_ context.Context, id types.KID) error {
	delete(m.groups, id)
	return nil
}

func (m *memStore) FindAssignments(_ context.Context, f AssignmentFilter) ([]*UserGroupAssignment, error) {
	var out []*UserGroupAssignment
	for _, a := range m.assignments {
		if !f.ParentGroupID.IsNil() && a.ParentGroupID != f.ParentGroupID {
			continue
		}
		if !f.ChildUserID.IsNil() && a.ChildUserID != f.ChildUserID {
			continue
		}
		if !f.ChildGroupID.IsNil() && a.ChildGroupID != f.ChildGroupID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) SaveAssignment(_ context.Context, a *UserGroupAssignment) error {
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *memStore) DeleteAssignment(_ context.Context, id types.KID) error {
	delete(m.assignments, id)
	return nil
}

func containsKID(ids []types.KID, id types.KID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

var _ Store = (*memStore)(nil)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, nil), store
}

func userKID(t *testing.T, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID(types.UserPrefix, seq)
	require.NoError(t, err)
	return id
}

func recordKID(t *testing.T, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID("c01", seq)
	require.NoError(t, err)
	return id
}

func TestShareRecordIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	first, err := svc.ShareRecord(ctx, record, user, false, false, "manual", true)
	require.NoError(t, err)
	second, err := svc.ShareRecord(ctx, record, user, true, true, "manual", true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.urs, 1)
	assert.True(t, store.urs[first.ID].CanEdit)
	assert.True(t, store.urs[first.ID].CanDelete)
}

func TestShareRecordRejectsNilIDs(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ShareRecord(ctx, types.NilKID, userKID(t, 1), false, false, "", true)
	assert.Error(t, err)
	_, err = svc.ShareRecord(ctx, recordKID(t, 1), types.NilKID, false, false, "", true)
	assert.Error(t, err)
}

func TestShareRecordEditRevokeKeepsView(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	_, err := svc.ShareRecord(ctx, record, user, true, false, "", true)
	require.NoError(t, err)
	canEdit, err := svc.CanEditRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canEdit)

	// re-share without edit
	_, err = svc.ShareRecord(ctx, record, user, false, false, "", true)
	require.NoError(t, err)

	canEdit, err = svc.CanEditRecord(ctx, record, user)
	require.NoError(t, err)
	assert.False(t, canEdit)
	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)
}

func TestUnshareRecordLeavesDerivedRows(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, group.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, group.ID, false, false, "")
	require.NoError(t, err)
	_, err = svc.ShareRecord(ctx, record, user, false, false, "", true)
	require.NoError(t, err)
	assert.Len(t, store.urs, 2)

	require.NoError(t, svc.UnshareRecord(ctx, record, user))

	// the derived row survives, so group access remains
	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)
	assert.Len(t, store.urs, 1)
}

func TestShareRecordWithGroupPropagatesToNestedMembers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	direct := userKID(t, 1)
	nested := userKID(t, 2)
	outsider := userKID(t, 3)

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, direct, parent.ID)
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, nested, child.ID)
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)

	_, err = svc.ShareRecordWithGroup(ctx, record, parent.ID, true, false, "")
	require.NoError(t, err)

	for _, user := range []types.KID{direct, nested} {
		canView, err := svc.CanViewRecord(ctx, record, user)
		require.NoError(t, err)
		assert.True(t, canView, "user %s", user)
		canEdit, err := svc.CanEditRecord(ctx, record, user)
		require.NoError(t, err)
		assert.True(t, canEdit, "user %s", user)
	}
	canView, err := svc.CanViewRecord(ctx, record, outsider)
	require.NoError(t, err)
	assert.False(t, canView)
}

func TestUnshareRecordWithGroupRetractsExactly(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, group.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, group.ID, false, false, "")
	require.NoError(t, err)
	_, err = svc.ShareRecord(ctx, record, user, true, false, "manual", true)
	require.NoError(t, err)

	require.NoError(t, svc.UnshareRecordWithGroup(ctx, record, group.ID))

	// the generic sharing survives the group unshare
	assert.Len(t, store.urs, 1)
	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)
	canEdit, err := svc.CanEditRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canEdit)
	assert.Empty(t, store.grs)
}

func TestCanGroupViewRecordDirectOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, parent.ID, false, false, "")
	require.NoError(t, err)

	canView, err := svc.CanGroupViewRecord(ctx, record, parent.ID)
	require.NoError(t, err)
	assert.True(t, canView)
	canView, err = svc.CanGroupViewRecord(ctx, record, child.ID)
	require.NoError(t, err)
	assert.False(t, canView)
}

func TestAssignUserToGroupIsRetroactive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, group.ID, false, true, "")
	require.NoError(t, err)

	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.False(t, canView)

	_, err = svc.AssignUserToGroup(ctx, user, group.ID)
	require.NoError(t, err)

	canView, err = svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)
	canDelete, err := svc.CanDeleteRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canDelete)
}

func TestAssignUserToGroupReachesAncestorSharings(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, parent.ID, false, false, "")
	require.NoError(t, err)

	// joining the child grants access through the parent's sharing
	_, err = svc.AssignUserToGroup(ctx, user, child.ID)
	require.NoError(t, err)

	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)
}

func TestUnassignUserFromGroupRevokesDerivedAccess(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, group.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, group.ID, false, false, "")
	require.NoError(t, err)
	_, err = svc.ShareRecord(ctx, record, user, false, false, "manual", true)
	require.NoError(t, err)

	require.NoError(t, svc.UnassignUserFromGroup(ctx, user, group.ID))

	// derived row gone, generic one intact
	assert.Len(t, store.urs, 1)
	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canView)

	require.NoError(t, svc.UnshareRecord(ctx, record, user))
	canView, err = svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.False(t, canView)
}

func TestUnassignUserFromGroupMissingAssignment(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	err = svc.UnassignUserFromGroup(ctx, userKID(t, 1), group.ID)
	assert.ErrorIs(t, err, ErrNoSuchAssignment)
}

func TestUnassignGroupFromGroupRevokesInheritedAccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, child.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, parent.ID, false, false, "")
	require.NoError(t, err)

	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	require.True(t, canView)

	require.NoError(t, svc.UnassignGroupFromGroup(ctx, child.ID, parent.ID))

	canView, err = svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.False(t, canView)
}

func TestAssignGroupToGroupRejectsCycles(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.CreateGroup(ctx, "a")
	require.NoError(t, err)
	b, err := svc.CreateGroup(ctx, "b")
	require.NoError(t, err)
	c, err := svc.CreateGroup(ctx, "c")
	require.NoError(t, err)

	_, err = svc.AssignGroupToGroup(ctx, b.ID, a.ID)
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, c.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.AssignGroupToGroup(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrGroupCycle)
	_, err = svc.AssignGroupToGroup(ctx, a.ID, c.ID)
	assert.ErrorIs(t, err, ErrGroupCycle)
}

func TestAssignGroupToGroupIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)

	first, err := svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	second, err := svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.assignments, 1)
}

func TestDeleteGroupDropsSharingsAndLinks(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	parent, err := svc.CreateGroup(ctx, "parent")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, child.ID)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, parent.ID, false, false, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGroup(ctx, child.ID))

	// the parent's sharing remains, but the user lost their only path to it
	assert.Len(t, store.grs, 1)
	canView, err := svc.CanViewRecord(ctx, record, user)
	require.NoError(t, err)
	assert.False(t, canView)
	assert.Empty(t, store.assignments)

	err = svc.DeleteGroup(ctx, child.ID)
	assert.ErrorIs(t, err, ErrNoSuchGroup)
}

func TestShareRecordWithGroupUnknownGroup(t *testing.T) {
	svc, _ := newTestService()
	missing, err := types.NewKID(types.UserGroupPrefix, 99)
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(context.Background(), recordKID(t, 1), missing, false, false, "")
	assert.ErrorIs(t, err, ErrNoSuchGroup)
}

func TestReshareWithGroupUpdatesDerivedFlags(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	user := userKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, user, group.ID)
	require.NoError(t, err)

	first, err := svc.ShareRecordWithGroup(ctx, record, group.ID, false, false, "")
	require.NoError(t, err)
	second, err := svc.ShareRecordWithGroup(ctx, record, group.ID, true, false, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// still one derived row, now with edit
	assert.Len(t, store.urs, 1)
	canEdit, err := svc.CanEditRecord(ctx, record, user)
	require.NoError(t, err)
	assert.True(t, canEdit)
}

func TestUnshareRecordWithAllGroupsLeavesNoResidualAccess(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	record := recordKID(t, 1)
	direct := userKID(t, 1)
	nested := userKID(t, 2)

	readers, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	editors, err := svc.CreateGroup(ctx, "editors")
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, "child")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, direct, readers.ID)
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, nested, child.ID)
	require.NoError(t, err)
	_, err = svc.AssignGroupToGroup(ctx, child.ID, editors.ID)
	require.NoError(t, err)

	_, err = svc.ShareRecordWithGroup(ctx, record, readers.ID, false, false, "")
	require.NoError(t, err)
	_, err = svc.ShareRecordWithGroup(ctx, record, editors.ID, true, false, "")
	require.NoError(t, err)
	assert.Len(t, store.grs, 2)
	assert.Len(t, store.urs, 2)

	require.NoError(t, svc.UnshareRecordWithAllGroups(ctx, record))

	assert.Empty(t, store.grs)
	assert.Empty(t, store.urs)
	for _, user := range []types.KID{direct, nested} {
		canView, err := svc.CanViewRecord(ctx, record, user)
		require.NoError(t, err)
		assert.False(t, canView, "user %s", user)
	}
}

// brokenStore fails SaveURS after a fixed number of successful calls, so
// propagation can be interrupted partway through a member loop.
type brokenStore struct {
	*memStore
	saveBudget int
}

func (b *brokenStore) SaveURS(ctx context.Context, urs *UserRecordSharing) error {
	if b.saveBudget == 0 {
		return errors.New("save failed")
	}
	b.saveBudget--
	return b.memStore.SaveURS(ctx, urs)
}

func (b *brokenStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	snap := b.memStore.snapshot()
	if err := fn(b); err != nil {
		b.memStore.restore(snap)
		return err
	}
	return nil
}

func TestShareRecordWithGroupRollsBackOnPartialFailure(t *testing.T) {
	mem := newMemStore()
	svc := NewService(mem, nil)
	ctx := context.Background()
	record := recordKID(t, 1)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	for seq := int64(1); seq <= 3; seq++ {
		_, err = svc.AssignUserToGroup(ctx, userKID(t, seq), group.ID)
		require.NoError(t, err)
	}

	broken := &brokenStore{memStore: mem, saveBudget: 1}
	_, err = NewService(broken, nil).ShareRecordWithGroup(ctx, record, group.ID, false, false, "")
	require.Error(t, err)

	// the failed propagation must not leave the GRS or a subset of the
	// derived rows behind
	assert.Empty(t, mem.grs)
	assert.Empty(t, mem.urs)
}

func TestUnassignUserFromGroupRollsBackOnPartialFailure(t *testing.T) {
	mem := newMemStore()
	svc := NewService(mem, nil)
	ctx := context.Background()
	record := recordKID(t, 1)
	leaver := userKID(t, 1)
	stayer := userKID(t, 2)

	group, err := svc.CreateGroup(ctx, "readers")
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, leaver, group.ID)
	require.NoError(t, err)
	_, err = svc.AssignUserToGroup(ctx, stayer, group.ID)
	require.NoError(t, err)
	grs, err := svc.ShareRecordWithGroup(ctx, record, group.ID, true, false, "")
	require.NoError(t, err)
	assert.Len(t, mem.urs, 2)

	// resync wants to refresh the stayer's row after a flag change and fails
	grs.CanEdit = false
	require.NoError(t, mem.SaveGRS(ctx, grs))
	broken := &brokenStore{memStore: mem, saveBudget: 0}
	err = NewService(broken, nil).UnassignUserFromGroup(ctx, leaver, group.ID)
	require.Error(t, err)

	// membership and both derived rows are untouched
	assert.Len(t, mem.assignments, 2)
	assert.Len(t, mem.urs, 2)
	canView, err := svc.CanViewRecord(ctx, record, leaver)
	require.NoError(t, err)
	assert.True(t, canView)
}
