package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/types"
)

// DefaultQueryTimeout bounds every SQL execution issued by the executor.
const DefaultQueryTimeout = 30 * time.Second

// Executor runs compiled criteria against the database and hydrates records.
type Executor struct {
	db       *sql.DB
	resolver types.TypeResolver
	timeout  time.Duration
	log      *zap.Logger
}

// NewExecutor creates a query executor.
func NewExecutor(db *sql.DB, resolver types.TypeResolver, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{db: db, resolver: resolver, timeout: DefaultQueryTimeout, log: log}
}

// List compiles and runs a non-grouped criteria, returning hydrated records
// with nested reference properties populated.
func (e *Executor) List(ctx context.Context, c *Criteria) ([]*types.Record, error) {
	q, err := c.Compile()
	if err != nil {
		return nil, err
	}
	if q.Grouped {
		return nil, fmt.Errorf("criteria for type %s is grouped; use ListGrouped", c.typ.QualifiedName())
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.log.Debug("executing query", zap.String("sql", q.SQL))
	rows, err := e.db.QueryContext(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	var records []*types.Record
	for rows.Next() {
		raw := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		record, err := e.hydrateRow(c.typ, q, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(q.Collections) > 0 && len(records) > 0 {
		if err := e.loadCollections(ctx, c, q, records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// ListGrouped compiles and runs a grouped criteria.
func (e *Executor) ListGrouped(ctx context.Context, c *Criteria) ([]*QueryResult, error) {
	q, err := c.Compile()
	if err != nil {
		return nil, err
	}
	if !q.Grouped {
		return nil, fmt.Errorf("criteria for type %s has no group-by property", c.typ.QualifiedName())
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.log.Debug("executing grouped query", zap.String("sql", q.SQL))
	rows, err := e.db.QueryContext(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	var results []*QueryResult
	for rows.Next() {
		raw := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		result := &QueryResult{values: make(map[string]any, len(q.Columns))}
		for i, col := range q.Columns {
			if col.aggregate != "" {
				if raw[i] == nil {
					result.values[col.label] = nil
					continue
				}
				d, err := toDecimal(raw[i])
				if err != nil {
					return nil, fmt.Errorf("aggregate %s: %w", col.label, err)
				}
				result.values[col.label] = d
				continue
			}
			converted, err := convertValue(col.chain.Terminal, raw[i])
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", col.path, err)
			}
			result.values[col.label] = converted
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Count compiles and runs the criteria as a COUNT query.
func (e *Executor) Count(ctx context.Context, c *Criteria) (int64, error) {
	sqlText, err := c.CompileCount()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var count int64
	if err := e.db.QueryRowContext(ctx, sqlText).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

// hydrateRow turns one scanned row into a record with nested records built
// for every reference path in the select list.
func (e *Executor) hydrateRow(root *types.Type, q *SelectQuery, raw []any) (*types.Record, error) {
	record := types.NewRecord(root)
	// nested records per reference path, created when the path has at least
	// one non-null column in this row
	nested := make(map[string]*types.Record)
	nullRefs := make(map[string]bool)

	for i, col := range q.Columns {
		converted, err := convertValue(col.chain.Terminal, raw[i])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", col.path, err)
		}
		if len(col.chain.Refs) == 0 {
			if err := record.SetField(col.path, converted, e.resolver); err != nil {
				return nil, err
			}
			continue
		}

		refPath := ""
		parent := record
		for j, ref := range col.chain.Refs {
			if refPath == "" {
				refPath = ref.APIName
			} else {
				refPath += "." + ref.APIName
			}
			child, ok := nested[refPath]
			if !ok {
				child = types.NewRecord(col.chain.RefTypes[j])
				nested[refPath] = child
			}
			if converted != nil {
				if err := parent.SetField(ref.APIName, child, e.resolver); err != nil {
					return nil, err
				}
				delete(nullRefs, refPath)
			} else if !parent.IsSet(ref.APIName) {
				nullRefs[refPath] = true
			}
			parent = child
		}
		if err := parent.SetField(col.chain.Terminal.APIName, converted, e.resolver); err != nil {
			return nil, err
		}
	}

	// reference paths whose columns were all NULL surface as explicit nulls,
	// shallowest first so children of a null reference are skipped
	paths := make([]string, 0, len(nullRefs))
	for refPath := range nullRefs {
		paths = append(paths, refPath)
	}
	sort.Slice(paths, func(i, j int) bool {
		return strings.Count(paths[i], ".") < strings.Count(paths[j], ".")
	})
	for _, refPath := range paths {
		if record.IsSet(refPath) {
			continue
		}
		parentPath := ""
		if idx := strings.LastIndexByte(refPath, '.'); idx >= 0 {
			parentPath = refPath[:idx]
		}
		if parentPath != "" {
			parent, err := record.GetField(parentPath)
			if err != nil || parent == nil {
				continue
			}
		}
		if err := record.SetField(refPath, nil, e.resolver); err != nil {
			return nil, err
		}
	}
	return record, nil
}
