package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
)

// ProfileTable holds profile rows; PermissionTable holds one row per
// profile/type permission grant.
const (
	ProfileTable    = "profiles"
	PermissionTable = "type_permissions"
)

// PermissionService loads profiles and their type permissions from the
// database and caches them. Mutating a profile's grants goes through this
// service so the cache never serves stale bundles.
type PermissionService struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[types.KID]*Profile
}

// NewPermissionService creates a service over the given database handle.
func NewPermissionService(db *sql.DB) *PermissionService {
	return &PermissionService{db: db, cache: make(map[types.KID]*Profile)}
}

// PermissionSchema returns the DDL of the profile and permission tables.
func PermissionSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + ProfileTable + ` (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS ` + PermissionTable + ` (
			profile_id TEXT NOT NULL,
			type_id TEXT NOT NULL,
			can_read BOOLEAN NOT NULL DEFAULT FALSE,
			can_create BOOLEAN NOT NULL DEFAULT FALSE,
			can_edit BOOLEAN NOT NULL DEFAULT FALSE,
			can_delete BOOLEAN NOT NULL DEFAULT FALSE,
			can_read_all BOOLEAN NOT NULL DEFAULT FALSE,
			can_edit_all BOOLEAN NOT NULL DEFAULT FALSE,
			can_delete_all BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (profile_id, type_id)
		)`,
	}
}

// Profile returns the profile with its permission bundles, loading it on the
// first request and serving the cached copy afterwards.
func (s *PermissionService) Profile(ctx context.Context, id types.KID) (*Profile, error) {
	s.mu.RLock()
	p, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent load may have won; keep the first cached copy so all
	// callers share one profile instance.
	if cached, ok := s.cache[id]; ok {
		return cached, nil
	}
	s.cache[id] = p
	return p, nil
}

func (s *PermissionService) load(ctx context.Context, id types.KID) (*Profile, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM "+ProfileTable+" WHERE id = $1", id.String()).Scan(&name)
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", id, store.ConvertDBError(err))
	}
	p := NewProfile(id, name)

	rows, err := s.db.QueryContext(ctx, `SELECT type_id, can_read, can_create, can_edit,
		can_delete, can_read_all, can_edit_all, can_delete_all
		FROM `+PermissionTable+` WHERE profile_id = $1`, id.String())
	if err != nil {
		return nil, fmt.Errorf("loading permissions of profile %s: %w", id, store.ConvertDBError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var typeID string
		var perm TypePermission
		if err := rows.Scan(&typeID, &perm.Read, &perm.Create, &perm.Edit,
			&perm.Delete, &perm.ReadAll, &perm.EditAll, &perm.DeleteAll); err != nil {
			return nil, store.ConvertDBError(err)
		}
		kid, err := types.ParseKID(typeID)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", id, err)
		}
		p.SetTypePermission(kid, perm)
	}
	return p, rows.Err()
}

// SetTypePermission persists a grant and applies it to the cached profile,
// if loaded.
func (s *PermissionService) SetTypePermission(ctx context.Context, profileID, typeID types.KID, perm TypePermission) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+PermissionTable+` (profile_id, type_id,
		can_read, can_create, can_edit, can_delete, can_read_all, can_edit_all, can_delete_all)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (profile_id, type_id) DO UPDATE SET
		can_read = $3, can_create = $4, can_edit = $5, can_delete = $6,
		can_read_all = $7, can_edit_all = $8, can_delete_all = $9`,
		profileID.String(), typeID.String(),
		perm.Read, perm.Create, perm.Edit, perm.Delete,
		perm.ReadAll, perm.EditAll, perm.DeleteAll)
	if err != nil {
		return store.ConvertDBError(err)
	}

	s.mu.RLock()
	p, ok := s.cache[profileID]
	s.mu.RUnlock()
	if ok {
		p.SetTypePermission(typeID, perm)
	}
	return nil
}

// Invalidate drops a profile from the cache so the next request reloads it.
func (s *PermissionService) Invalidate(profileID types.KID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, profileID)
}
