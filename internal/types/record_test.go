package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves types from a map, standing in for the environment.
type mapResolver map[KID]*Type

func (m mapResolver) Type(id KID) (*Type, bool) {
	t, ok := m[id]
	return t, ok
}

// pigeonFixture builds a self-referencing Pigeon type.
func pigeonFixture(t *testing.T) (*Type, mapResolver) {
	t.Helper()
	typ, err := NewType("app", "Pigeon", "Pigeon")
	require.NoError(t, err)
	typ.ID = KID("0020000000001")
	typ.KeyPrefix = "c01"

	require.NoError(t, typ.AddField(&Field{APIName: "name", DataType: Text(), Required: true}))
	require.NoError(t, typ.AddField(&Field{APIName: "age", DataType: Number(0), Required: true}))
	require.NoError(t, typ.AddField(&Field{APIName: "father", DataType: TypeReference(typ.ID, false)}))
	require.NoError(t, typ.AddField(&Field{APIName: "colour", DataType: Enumeration("blue", "grey")}))

	return typ, mapResolver{typ.ID: typ}
}

func TestRecordSetAndGetField(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	require.NoError(t, rec.SetField("name", "Bronek", resolver))
	v, err := rec.GetField("name")
	require.NoError(t, err)
	assert.Equal(t, "Bronek", v)
}

func TestRecordGetFieldUnset(t *testing.T) {
	typ, _ := pigeonFixture(t)
	rec := NewRecord(typ)

	_, err := rec.GetField("name")
	assert.ErrorIs(t, err, ErrFieldNotSet)

	_, err = rec.GetField("nosuchfield")
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestRecordExplicitNullIsNotUnset(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	require.NoError(t, rec.SetField("name", nil, resolver))
	v, err := rec.GetField("name")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, rec.IsSet("name"))
}

func TestRecordNestedPathCreatesStub(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	require.NoError(t, rec.SetField("father.name", "Bronek", resolver))

	v, err := rec.GetField("father.name")
	require.NoError(t, err)
	assert.Equal(t, "Bronek", v)

	father, err := rec.GetField("father")
	require.NoError(t, err)
	require.IsType(t, (*Record)(nil), father)
	assert.Equal(t, typ, father.(*Record).Type())
}

func TestRecordNullifiedPlaceholder(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	require.NoError(t, rec.SetField("father", SpecialValueNull, resolver))

	// The placeholder reads as null, not as an unset field.
	v, err := rec.GetField("father")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = rec.GetField("father.name")
	require.NoError(t, err)
	assert.Nil(t, v)

	// Writing through the placeholder revives it.
	require.NoError(t, rec.SetField("father.name", "Bronek", resolver))
	v, err = rec.GetField("father.name")
	require.NoError(t, err)
	assert.Equal(t, "Bronek", v)
}

func TestRecordEnumerationRejectsNewlines(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	err := rec.SetField("colour", "blue\ngrey", resolver)
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	require.NoError(t, rec.SetField("colour", "blue", resolver))
}

func TestRecordReferenceValueKinds(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)

	assert.ErrorIs(t, rec.SetField("father", 42, resolver), ErrInvalidFieldValue)
	require.NoError(t, rec.SetField("father", KID("c010000000001"), resolver))

	father := NewRecord(typ)
	father.SetID("c010000000002")
	require.NoError(t, rec.SetField("father", father, resolver))
}

func TestRecordAccessType(t *testing.T) {
	typ, resolver := pigeonFixture(t)
	rec := NewRecord(typ)
	assert.Equal(t, AccessPublic, rec.AccessType())

	require.NoError(t, rec.SetField(AccessTypeField, AccessSystem, resolver))
	assert.Equal(t, AccessSystem, rec.AccessType())
}
