package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/auth"
	"github.com/kommetio/kommet-core/internal/query"
	"github.com/kommetio/kommet-core/internal/types"
)

func clerkAuth(t *testing.T, te *testEnv, perm auth.TypePermission) *auth.AuthData {
	t.Helper()
	profile := auth.NewProfile(mustKID(t, types.ProfilePrefix, 1), "clerk")
	profile.SetTypePermission(te.pigeon.ID, perm)
	return auth.NewAuthData(mustKID(t, types.UserPrefix, 1), profile)
}

func TestListRejectsUnreadableType(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()
	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")

	a := clerkAuth(t, te, auth.TypePermission{})
	_, err := te.svc.List(context.Background(), c, a)
	assert.ErrorIs(t, err, auth.ErrInsufficientQueryPrivileges)

	_, err = te.svc.Count(context.Background(), c, a)
	assert.ErrorIs(t, err, auth.ErrInsufficientQueryPrivileges)
}

func TestApplyReadACLRestrictsToSharedRecords(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()

	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	a := clerkAuth(t, te, auth.TypePermission{Read: true})
	require.NoError(t, te.svc.applyReadACL(c, a))

	q, err := c.Compile()
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "t0.id IN (SELECT record_id FROM user_record_sharings WHERE user_id = '0040000000001' AND can_read = TRUE)")
}

func TestApplyReadACLReadAllSkipsRestriction(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()

	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	a := clerkAuth(t, te, auth.TypePermission{Read: true, ReadAll: true})
	require.NoError(t, te.svc.applyReadACL(c, a))

	q, err := c.Compile()
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "user_record_sharings")
}

func TestApplyReadACLRootBypasses(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()

	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	require.NoError(t, te.svc.applyReadACL(c, auth.RootAuthData()))

	q, err := c.Compile()
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "user_record_sharings")
}

func TestApplyReadACLFiltersJoinedReferences(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()

	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	c.AddProperty("father.name")
	a := clerkAuth(t, te, auth.TypePermission{Read: true})
	require.NoError(t, te.svc.applyReadACL(c, a))

	q, err := c.Compile()
	require.NoError(t, err)
	// the joined pigeon alias carries its own sharing filter in the ON clause
	assert.Contains(t, q.SQL, "LEFT JOIN obj_c01 t1 ON t0.father = t1.id AND t1.id IN (SELECT record_id FROM user_record_sharings")
}

func TestReadRestrictionControlledBy(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()
	user := mustKID(t, types.UserPrefix, 7)

	te.pigeon.SharingControlledByField = "father"

	c := query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	c.Add(te.svc.readRestriction(te.pigeon, user))
	q, err := c.Compile()
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "t0.father IN (SELECT record_id FROM user_record_sharings WHERE user_id = '0040000000007'")
	assert.NotContains(t, q.SQL, "t0.id IN (SELECT")

	te.pigeon.CombineRecordAndCascadeSharing = true
	c = query.NewCriteria(te.pigeon, te.env)
	c.AddProperty("id")
	c.Add(te.svc.readRestriction(te.pigeon, user))
	q, err = c.Compile()
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "t0.father IN (SELECT")
	assert.Contains(t, q.SQL, "t0.id IN (SELECT")
	assert.Contains(t, q.SQL, " OR ")
}

func TestReadFilterSQL(t *testing.T) {
	te := newTestEnv(t)
	defer te.cleanup()

	readAll := clerkAuth(t, te, auth.TypePermission{Read: true, ReadAll: true})
	assert.Equal(t, "", te.svc.readFilterSQL(te.pigeon, "t1", readAll))

	none := clerkAuth(t, te, auth.TypePermission{})
	assert.Equal(t, "1 = 0", te.svc.readFilterSQL(te.pigeon, "t1", none))

	read := clerkAuth(t, te, auth.TypePermission{Read: true})
	assert.Equal(t,
		"t1.id IN (SELECT record_id FROM user_record_sharings WHERE user_id = '0040000000001' AND can_read = TRUE)",
		te.svc.readFilterSQL(te.pigeon, "t1", read))

	te.pigeon.SharingControlledByField = "father"
	assert.Equal(t,
		"t1.father IN (SELECT record_id FROM user_record_sharings WHERE user_id = '0040000000001' AND can_read = TRUE)",
		te.svc.readFilterSQL(te.pigeon, "t1", read))

	te.pigeon.CombineRecordAndCascadeSharing = true
	got := te.svc.readFilterSQL(te.pigeon, "t1", read)
	assert.Contains(t, got, "t1.father IN (")
	assert.Contains(t, got, " OR t1.id IN (")
}
