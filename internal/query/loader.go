package query

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/kommetio/kommet-core/internal/types"
)

// loadCollections populates inverse-collection and association properties on
// the hydrated records with a single batch query per collection field.
// Access filtering applies to the related records the same way it applies to
// joined references: unreadable children are simply absent.
func (e *Executor) loadCollections(ctx context.Context, c *Criteria, q *SelectQuery, records []*types.Record) error {
	parentIDs := make([]string, 0, len(records))
	byID := make(map[types.KID]*types.Record, len(records))
	for _, r := range records {
		id := r.ID()
		if id.IsNil() {
			return fmt.Errorf("collection properties require the id property to be selected")
		}
		parentIDs = append(parentIDs, id.String())
		byID[id] = r
	}

	for _, coll := range q.Collections {
		childType, ok := e.resolver.Type(coll.field.DataType.RefTypeID)
		if !ok {
			return fmt.Errorf("%w: related type of collection %s", types.ErrNoSuchType, coll.field.APIName)
		}

		var childIDsByParent map[types.KID][]types.KID
		var err error
		switch coll.field.DataType.Kind {
		case types.KindInverseCollection:
			childIDsByParent, err = e.loadInverseCollection(ctx, c, coll.field, childType, parentIDs)
		case types.KindAssociation:
			childIDsByParent, err = e.loadAssociation(ctx, c, coll.field, childType, parentIDs)
		default:
			err = fmt.Errorf("field %s is not a collection", coll.field.APIName)
		}
		if err != nil {
			return err
		}

		children, err := e.fetchChildren(ctx, c, childType, coll.subPath, childIDsByParent)
		if err != nil {
			return err
		}

		for parentID, parent := range byID {
			group := make([]*types.Record, 0, len(childIDsByParent[parentID]))
			for _, childID := range childIDsByParent[parentID] {
				if child, ok := children[childID]; ok {
					group = append(group, child)
				}
			}
			if err := parent.SetField(coll.field.APIName, group, e.resolver); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadInverseCollection maps parent id -> child ids through the mapping
// reference field on the child type.
func (e *Executor) loadInverseCollection(ctx context.Context, c *Criteria, field *types.Field, childType *types.Type, parentIDs []string) (map[types.KID][]types.KID, error) {
	mappingField, ok := childType.Field(field.DataType.MappingField)
	if !ok {
		return nil, fmt.Errorf("%w: mapping field %s on type %s", types.ErrNoSuchField, field.DataType.MappingField, childType.QualifiedName())
	}
	sqlText := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s = ANY($1)",
		mappingField.DBColumn(), childType.TableName(), mappingField.DBColumn())
	if c.readFilter != nil {
		if filter := c.readFilter(childType, childType.TableName()); filter != "" {
			sqlText = fmt.Sprintf("SELECT id, %s FROM %s WHERE %s = ANY($1) AND %s",
				mappingField.DBColumn(), childType.TableName(), mappingField.DBColumn(), filter)
		}
	}
	return e.scanPairs(ctx, sqlText, parentIDs, false)
}

// loadAssociation maps parent id -> child ids through the linking type.
func (e *Executor) loadAssociation(ctx context.Context, c *Criteria, field *types.Field, childType *types.Type, parentIDs []string) (map[types.KID][]types.KID, error) {
	linkingType, ok := e.resolver.Type(field.DataType.LinkingTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: linking type of association %s", types.ErrNoSuchType, field.APIName)
	}
	selfField, ok := linkingType.Field(field.DataType.SelfLinkingField)
	if !ok {
		return nil, fmt.Errorf("%w: linking field %s", types.ErrNoSuchField, field.DataType.SelfLinkingField)
	}
	foreignField, ok := linkingType.Field(field.DataType.ForeignLinkingField)
	if !ok {
		return nil, fmt.Errorf("%w: linking field %s", types.ErrNoSuchField, field.DataType.ForeignLinkingField)
	}
	sqlText := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ANY($1)",
		selfField.DBColumn(), foreignField.DBColumn(), linkingType.TableName(), selfField.DBColumn())
	return e.scanPairs(ctx, sqlText, parentIDs, true)
}

// scanPairs runs a two-column (a, b) query. With swapped=false the pairs are
// (child, parent); with swapped=true they are (parent, child).
func (e *Executor) scanPairs(ctx context.Context, sqlText string, parentIDs []string, swapped bool) (map[types.KID][]types.KID, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, pq.Array(parentIDs))
	if err != nil {
		return nil, fmt.Errorf("collection query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[types.KID][]types.KID)
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		first, err := types.ParseKID(a)
		if err != nil {
			return nil, err
		}
		second, err := types.ParseKID(b)
		if err != nil {
			return nil, err
		}
		if swapped {
			out[first] = append(out[first], second)
		} else {
			out[second] = append(out[second], first)
		}
	}
	return out, rows.Err()
}

// fetchChildren loads the related records themselves, filtered by the access
// filter when one is installed.
func (e *Executor) fetchChildren(ctx context.Context, c *Criteria, childType *types.Type, subPath string, idsByParent map[types.KID][]types.KID) (map[types.KID]*types.Record, error) {
	var all []string
	seen := make(map[types.KID]bool)
	for _, ids := range idsByParent {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				all = append(all, id.String())
			}
		}
	}
	out := make(map[types.KID]*types.Record)
	if len(all) == 0 {
		return out, nil
	}

	childCriteria := NewCriteria(childType, e.resolver).AddProperty(types.IDField)
	if subPath != "" && subPath != types.IDField {
		childCriteria.AddProperty(subPath)
	}
	childCriteria.SetReadFilter(c.readFilter)
	q, err := childCriteria.Compile()
	if err != nil {
		return nil, err
	}
	sqlText := q.SQL + " WHERE " + rootAlias + ".id = ANY($1)"
	if c.readFilter != nil {
		if filter := c.readFilter(childType, rootAlias); filter != "" {
			sqlText += " AND " + filter
		}
	}

	rows, err := e.db.QueryContext(ctx, sqlText, pq.Array(all))
	if err != nil {
		return nil, fmt.Errorf("collection fetch failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		raw := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record, err := e.hydrateRow(childType, q, raw)
		if err != nil {
			return nil, err
		}
		out[record.ID()] = record
	}
	return out, rows.Err()
}
