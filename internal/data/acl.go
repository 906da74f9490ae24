package data

import (
	"context"
	"fmt"

	"github.com/kommetio/kommet-core/internal/auth"
	"github.com/kommetio/kommet-core/internal/dal"
	"github.com/kommetio/kommet-core/internal/query"
	"github.com/kommetio/kommet-core/internal/sharing"
	"github.com/kommetio/kommet-core/internal/types"
)

// QueryOutput carries the result of a textual DAL query: plain record rows
// or grouped rows, depending on the query.
type QueryOutput struct {
	Records []*types.Record
	Groups  []*query.QueryResult
	Grouped bool
}

// Query parses and runs a DAL query with the caller's access applied.
func (s *Service) Query(ctx context.Context, text string, authData *auth.AuthData) (*QueryOutput, error) {
	c, err := dal.ParseQuery(text, s.env)
	if err != nil {
		return nil, err
	}
	if c.IsGrouped() {
		groups, err := s.ListGrouped(ctx, c, authData)
		if err != nil {
			return nil, err
		}
		return &QueryOutput{Groups: groups, Grouped: true}, nil
	}
	records, err := s.List(ctx, c, authData)
	if err != nil {
		return nil, err
	}
	return &QueryOutput{Records: records}, nil
}

// List runs a criteria with the caller's access applied: no profile read
// fails fast, no readAll restricts rows to shared records, and joined
// references the caller cannot read come back null.
func (s *Service) List(ctx context.Context, c *query.Criteria, authData *auth.AuthData) ([]*types.Record, error) {
	if err := s.applyReadACL(c, authData); err != nil {
		return nil, err
	}
	return s.queries.List(ctx, c)
}

// ListGrouped runs a grouped criteria with the caller's access applied.
func (s *Service) ListGrouped(ctx context.Context, c *query.Criteria, authData *auth.AuthData) ([]*query.QueryResult, error) {
	if err := s.applyReadACL(c, authData); err != nil {
		return nil, err
	}
	return s.queries.ListGrouped(ctx, c)
}

// Count runs a COUNT with the caller's access applied. The privilege error
// is the same as for List.
func (s *Service) Count(ctx context.Context, c *query.Criteria, authData *auth.AuthData) (int64, error) {
	if err := s.applyReadACL(c, authData); err != nil {
		return 0, err
	}
	return s.queries.Count(ctx, c)
}

// applyReadACL injects record-level sharing restrictions into a criteria.
// The root restriction limits result rows; the read filter limits what
// joined references and collections expose.
func (s *Service) applyReadACL(c *query.Criteria, authData *auth.AuthData) error {
	if authData.IsRoot() {
		return nil
	}
	typ := c.Type()
	if !authData.CanReadType(typ.ID) {
		return fmt.Errorf("%w: %s", auth.ErrInsufficientQueryPrivileges, typ.QualifiedName())
	}
	if !authData.CanReadAll(typ.ID) {
		c.Add(s.readRestriction(typ, authData.UserID))
	}
	c.SetReadFilter(func(t *types.Type, alias string) string {
		return s.readFilterSQL(t, alias, authData)
	})
	return nil
}

// readShareSubquery selects the record ids the user holds a read grant on.
// KIDs are engine-generated and alphanumeric, so inlining is safe; quotes
// are doubled anyway.
func readShareSubquery(userID types.KID) string {
	return fmt.Sprintf("SELECT record_id FROM %s WHERE user_id = %s AND can_read = TRUE",
		sharing.URSTable, quoteKID(userID))
}

// readRestriction builds the root-level sharing restriction, honoring
// controlled-by delegation.
func (s *Service) readRestriction(typ *types.Type, userID types.KID) query.Restriction {
	sub := readShareSubquery(userID)
	if typ.SharingControlledByField == "" {
		return query.IDInSubquery(types.IDField, sub)
	}
	controlling := query.IDInSubquery(typ.SharingControlledByField, sub)
	if typ.CombineRecordAndCascadeSharing {
		return query.Or(controlling, query.IDInSubquery(types.IDField, sub))
	}
	return controlling
}

// readFilterSQL produces the per-alias filter applied to joins and
// collection loads. Unreadable types match nothing, so their references
// hydrate as null and their collection members are dropped.
func (s *Service) readFilterSQL(t *types.Type, alias string, authData *auth.AuthData) string {
	if authData.CanReadAll(t.ID) {
		return ""
	}
	if !authData.CanReadType(t.ID) {
		return "1 = 0"
	}
	sub := readShareSubquery(authData.UserID)
	own := fmt.Sprintf("%s.id IN (%s)", alias, sub)
	if t.SharingControlledByField == "" {
		return own
	}
	f, ok := t.Field(t.SharingControlledByField)
	if !ok {
		return own
	}
	delegated := fmt.Sprintf("%s.%s IN (%s)", alias, f.DBColumn(), sub)
	if t.CombineRecordAndCascadeSharing {
		return "(" + delegated + " OR " + own + ")"
	}
	return delegated
}

func quoteKID(id types.KID) string {
	return "'" + id.String() + "'"
}
