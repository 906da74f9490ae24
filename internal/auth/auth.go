// Package auth provides profiles, per-type permissions and the AuthData
// context that accompanies every data operation.
package auth

import (
	"errors"
	"sync"

	"github.com/kommetio/kommet-core/internal/types"
)

// Access control errors. Each operation kind has its own stable error so
// callers can branch on the failure.
var (
	// ErrInsufficientQueryPrivileges is returned when a user queries a type
	// their profile cannot read.
	ErrInsufficientQueryPrivileges = errors.New("insufficient privileges to query type")

	// ErrInsufficientCreatePrivileges is returned when a user saves a new
	// record of a type their profile cannot create.
	ErrInsufficientCreatePrivileges = errors.New("insufficient privileges to create record")

	// ErrInsufficientEditPrivileges is returned when a user edits a record
	// without profile edit permission or a record-level edit grant.
	ErrInsufficientEditPrivileges = errors.New("insufficient privileges to edit record")

	// ErrInsufficientDeletePrivileges is returned when a user deletes a
	// record without adequate privileges.
	ErrInsufficientDeletePrivileges = errors.New("insufficient privileges to delete record")
)

// TypePermission is the per-type capability bundle granted by a profile.
type TypePermission struct {
	Read    bool
	Create  bool
	Edit    bool
	Delete  bool
	ReadAll bool
	EditAll bool
	// DeleteAll ignores record-level sharing for deletes.
	DeleteAll bool
}

// Profile is a named permission bundle. Every user has exactly one profile.
type Profile struct {
	ID   types.KID
	Name string

	mu          sync.RWMutex
	permissions map[types.KID]TypePermission
}

// NewProfile creates an empty profile.
func NewProfile(id types.KID, name string) *Profile {
	return &Profile{ID: id, Name: name, permissions: make(map[types.KID]TypePermission)}
}

// SetTypePermission grants the capability bundle for a type, replacing any
// previous grant.
func (p *Profile) SetTypePermission(typeID types.KID, perm TypePermission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissions[typeID] = perm
}

// TypePermission returns the capability bundle for a type; the zero bundle
// (nothing granted) if absent.
func (p *Profile) TypePermission(typeID types.KID) TypePermission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.permissions[typeID]
}

// User is a platform account.
type User struct {
	ID        types.KID
	Username  string
	ProfileID types.KID
}

// AuthData carries the identity and permissions of the caller through every
// operation. Root auth data bypasses all permission checks.
type AuthData struct {
	UserID  types.KID
	Profile *Profile
	root    bool
}

// NewAuthData creates auth data for a user with the given profile.
func NewAuthData(userID types.KID, profile *Profile) *AuthData {
	return &AuthData{UserID: userID, Profile: profile}
}

// RootAuthData returns auth data that bypasses permission checks. Used for
// engine-internal operations such as sharing propagation.
func RootAuthData() *AuthData {
	return &AuthData{root: true}
}

// IsRoot reports whether the auth data bypasses permission checks.
func (a *AuthData) IsRoot() bool {
	return a != nil && a.root
}

// CanReadType reports whether the caller's profile can read the type at all.
func (a *AuthData) CanReadType(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).Read
}

// CanReadAll reports whether record-level sharing is ignored for reads.
func (a *AuthData) CanReadAll(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).ReadAll
}

// CanCreateType reports whether the caller may create records of the type.
func (a *AuthData) CanCreateType(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).Create
}

// CanEditType reports whether the caller has profile-level edit permission.
func (a *AuthData) CanEditType(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).Edit
}

// CanEditAll reports whether record-level sharing is ignored for edits.
func (a *AuthData) CanEditAll(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).EditAll
}

// CanDeleteType reports whether the caller has profile-level delete permission.
func (a *AuthData) CanDeleteType(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).Delete
}

// CanDeleteAll reports whether record-level sharing is ignored for deletes.
func (a *AuthData) CanDeleteAll(typeID types.KID) bool {
	if a.IsRoot() {
		return true
	}
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.TypePermission(typeID).DeleteAll
}
