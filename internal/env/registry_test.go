package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/types"
)

func newRegisteredType(t *testing.T, seq int64, apiName, prefix string) *types.Type {
	t.Helper()
	typ, err := types.NewType("app", apiName, apiName)
	require.NoError(t, err)
	typ.ID = mustKID(t, types.TypePrefix, seq)
	typ.KeyPrefix = prefix
	return typ
}

func mustKID(t *testing.T, prefix string, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID(prefix, seq)
	require.NoError(t, err)
	return id
}

func TestRegistryRegisterAndLookups(t *testing.T) {
	r := NewTypeRegistry()
	typ := newRegisteredType(t, 1, "Pigeon", "c01")
	require.NoError(t, r.Register(typ))

	got, ok := r.Get(typ.ID)
	assert.True(t, ok)
	assert.Same(t, typ, got)

	got, ok = r.GetByQualifiedName("app.Pigeon")
	assert.True(t, ok)
	assert.Same(t, typ, got)

	got, ok = r.GetByPrefix("c01")
	assert.True(t, ok)
	assert.Same(t, typ, got)

	_, ok = r.GetByQualifiedName("app.Sparrow")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.Register(newRegisteredType(t, 1, "Pigeon", "c01")))

	sameName := newRegisteredType(t, 2, "Pigeon", "c02")
	assert.ErrorIs(t, r.Register(sameName), types.ErrDuplicateType)

	samePrefix := newRegisteredType(t, 3, "Sparrow", "c01")
	assert.ErrorIs(t, r.Register(samePrefix), types.ErrDuplicateType)

	noID := newRegisteredType(t, 4, "Crow", "c03")
	noID.ID = types.NilKID
	assert.Error(t, r.Register(noID))
}

func TestRegistryUpdateSwapsAtomically(t *testing.T) {
	r := NewTypeRegistry()
	typ := newRegisteredType(t, 1, "Pigeon", "c01")
	require.NoError(t, r.Register(typ))

	replacement := newRegisteredType(t, 1, "Pigeon", "c01")
	require.NoError(t, replacement.AddField(&types.Field{APIName: "name", DataType: types.Text()}))
	require.NoError(t, r.Update(replacement))

	got, _ := r.Get(typ.ID)
	assert.Same(t, replacement, got)
	got, _ = r.GetByPrefix("c01")
	assert.Same(t, replacement, got)

	unknown := newRegisteredType(t, 9, "Crow", "c09")
	assert.ErrorIs(t, r.Update(unknown), types.ErrNoSuchType)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewTypeRegistry()
	typ := newRegisteredType(t, 1, "Pigeon", "c01")
	require.NoError(t, r.Register(typ))

	r.Unregister(typ.ID)
	_, ok := r.Get(typ.ID)
	assert.False(t, ok)
	_, ok = r.GetByPrefix("c01")
	assert.False(t, ok)

	// idempotent
	r.Unregister(typ.ID)
	assert.Empty(t, r.All())
}

func TestEnvResolvesTypes(t *testing.T) {
	e := New(mustKID(t, types.EnvPrefix, 1), "test")
	typ := newRegisteredType(t, 1, "Pigeon", "c01")
	require.NoError(t, e.Types().Register(typ))

	got, ok := e.Type(typ.ID)
	assert.True(t, ok)
	assert.Same(t, typ, got)
	got, ok = e.TypeByQualifiedName("app.Pigeon")
	assert.True(t, ok)
	assert.Same(t, typ, got)
	got, ok = e.TypeByPrefix("c01")
	assert.True(t, ok)
	assert.Same(t, typ, got)
}
