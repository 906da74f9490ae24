package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kommetio/kommet-core/internal/types"
)

// ErrInvalidToken is returned for expired, malformed or forged session tokens.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims are the JWT claims of a platform session token.
type SessionClaims struct {
	ProfileID string `json:"pfl"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies signed session tokens. The controller layer
// exchanges tokens for AuthData on every request.
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret.
func NewTokenIssuer(secret []byte, lifetime time.Duration) *TokenIssuer {
	if lifetime <= 0 {
		lifetime = 12 * time.Hour
	}
	return &TokenIssuer{secret: secret, lifetime: lifetime}
}

// Issue signs a session token for the user.
func (i *TokenIssuer) Issue(user *User) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		ProfileID: user.ProfileID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a session token and returns the user and profile identifiers
// it was issued for.
func (i *TokenIssuer) Verify(tokenText string) (userID, profileID types.KID, err error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenText, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return types.NilKID, types.NilKID, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err = types.ParseKID(claims.Subject)
	if err != nil {
		return types.NilKID, types.NilKID, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	profileID, err = types.ParseKID(claims.ProfileID)
	if err != nil {
		return types.NilKID, types.NilKID, fmt.Errorf("%w: bad profile", ErrInvalidToken)
	}
	return userID, profileID, nil
}
