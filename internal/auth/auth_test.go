package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/types"
)

func mustKID(t *testing.T, prefix string, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID(prefix, seq)
	require.NoError(t, err)
	return id
}

func TestAuthDataPermissionGating(t *testing.T) {
	typeID := mustKID(t, types.TypePrefix, 1)
	other := mustKID(t, types.TypePrefix, 2)

	profile := NewProfile(mustKID(t, types.ProfilePrefix, 1), "clerk")
	profile.SetTypePermission(typeID, TypePermission{Read: true, Create: true, Edit: true})
	a := NewAuthData(mustKID(t, types.UserPrefix, 1), profile)

	assert.True(t, a.CanReadType(typeID))
	assert.True(t, a.CanCreateType(typeID))
	assert.True(t, a.CanEditType(typeID))
	assert.False(t, a.CanReadAll(typeID))
	assert.False(t, a.CanEditAll(typeID))
	assert.False(t, a.CanDeleteType(typeID))
	assert.False(t, a.CanDeleteAll(typeID))

	// no grant at all on the other type
	assert.False(t, a.CanReadType(other))
	assert.False(t, a.CanCreateType(other))
}

func TestAuthDataWithoutProfileDeniesEverything(t *testing.T) {
	typeID := mustKID(t, types.TypePrefix, 1)
	a := NewAuthData(mustKID(t, types.UserPrefix, 1), nil)

	assert.False(t, a.CanReadType(typeID))
	assert.False(t, a.CanCreateType(typeID))
	assert.False(t, a.CanEditType(typeID))
	assert.False(t, a.CanDeleteType(typeID))

	var missing *AuthData
	assert.False(t, missing.CanReadType(typeID))
	assert.False(t, missing.IsRoot())
}

func TestRootAuthDataBypassesChecks(t *testing.T) {
	typeID := mustKID(t, types.TypePrefix, 1)
	root := RootAuthData()

	assert.True(t, root.IsRoot())
	assert.True(t, root.CanReadType(typeID))
	assert.True(t, root.CanReadAll(typeID))
	assert.True(t, root.CanCreateType(typeID))
	assert.True(t, root.CanEditAll(typeID))
	assert.True(t, root.CanDeleteAll(typeID))
}

func TestProfilePermissionReplacement(t *testing.T) {
	typeID := mustKID(t, types.TypePrefix, 1)
	profile := NewProfile(mustKID(t, types.ProfilePrefix, 1), "clerk")
	profile.SetTypePermission(typeID, TypePermission{Read: true, Edit: true})
	profile.SetTypePermission(typeID, TypePermission{Read: true})

	perm := profile.TypePermission(typeID)
	assert.True(t, perm.Read)
	assert.False(t, perm.Edit)
}

func TestTokenIssueVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	user := &User{
		ID:        mustKID(t, types.UserPrefix, 7),
		Username:  "zenek",
		ProfileID: mustKID(t, types.ProfilePrefix, 2),
	}

	token, err := issuer.Issue(user)
	require.NoError(t, err)

	userID, profileID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, user.ProfileID, profileID)
}

func TestTokenVerifyRejectsForgedAndExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	user := &User{
		ID:        mustKID(t, types.UserPrefix, 7),
		ProfileID: mustKID(t, types.ProfilePrefix, 2),
	}

	// wrong secret
	forged, err := NewTokenIssuer([]byte("other"), time.Hour).Issue(user)
	require.NoError(t, err)
	_, _, err = issuer.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// expired
	expired, err := NewTokenIssuer([]byte("secret"), time.Nanosecond).Issue(user)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, _, err = issuer.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// garbage
	_, _, err = issuer.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyRejectsWrongSigningMethod(t *testing.T) {
	claims := SessionClaims{
		ProfileID: mustKID(t, types.ProfilePrefix, 1).String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   mustKID(t, types.UserPrefix, 1).String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	_, _, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyRejectsBadSubject(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	claims := SessionClaims{
		ProfileID: mustKID(t, types.ProfilePrefix, 1).String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-kid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, _, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
