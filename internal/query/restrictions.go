// Package query implements the criteria API and its compilation to SQL:
// properties, nested reference paths with automatic joins, restriction trees,
// grouping with aggregates, ordering and limit/offset.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kommetio/kommet-core/internal/types"
)

// Restriction is a node of the predicate tree of a criteria.
type Restriction interface {
	// render produces the SQL fragment for the restriction. Column
	// references are resolved through the compile context.
	render(cc *compileContext) (string, error)
}

// ComparisonOp is the operator of a simple comparison restriction.
type ComparisonOp int

const (
	OpEq ComparisonOp = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpLike
)

// String returns the SQL representation of the operator.
func (o ComparisonOp) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpLike:
		return "LIKE"
	default:
		return "="
	}
}

type comparison struct {
	path  string
	op    ComparisonOp
	value any
}

func (c *comparison) render(cc *compileContext) (string, error) {
	column, err := cc.columnFor(c.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", column, c.op, renderLiteral(c.value)), nil
}

// Eq restricts the path to equal the value.
func Eq(path string, value any) Restriction { return &comparison{path: path, op: OpEq, value: value} }

// Ne restricts the path to differ from the value.
func Ne(path string, value any) Restriction { return &comparison{path: path, op: OpNe, value: value} }

// Gt restricts the path to be greater than the value.
func Gt(path string, value any) Restriction { return &comparison{path: path, op: OpGt, value: value} }

// Ge restricts the path to be greater than or equal to the value.
func Ge(path string, value any) Restriction { return &comparison{path: path, op: OpGe, value: value} }

// Lt restricts the path to be less than the value.
func Lt(path string, value any) Restriction { return &comparison{path: path, op: OpLt, value: value} }

// Le restricts the path to be less than or equal to the value.
func Le(path string, value any) Restriction { return &comparison{path: path, op: OpLe, value: value} }

// Like restricts the path with a SQL LIKE pattern.
func Like(path string, pattern string) Restriction {
	return &comparison{path: path, op: OpLike, value: pattern}
}

type isNull struct {
	path string
}

func (r *isNull) render(cc *compileContext) (string, error) {
	column, err := cc.columnFor(r.path)
	if err != nil {
		return "", err
	}
	return column + " IS NULL", nil
}

// IsNull restricts the path to hold no value.
func IsNull(path string) Restriction { return &isNull{path: path} }

type in struct {
	path   string
	values []any
}

func (r *in) render(cc *compileContext) (string, error) {
	column, err := cc.columnFor(r.path)
	if err != nil {
		return "", err
	}
	if len(r.values) == 0 {
		// empty IN list matches nothing
		return "1 = 0", nil
	}
	rendered := make([]string, len(r.values))
	for i, v := range r.values {
		rendered[i] = renderLiteral(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(rendered, ", ")), nil
}

// In restricts the path to one of the given values.
func In(path string, values ...any) Restriction { return &in{path: path, values: values} }

type not struct {
	inner Restriction
}

func (r *not) render(cc *compileContext) (string, error) {
	inner, err := r.inner.render(cc)
	if err != nil {
		return "", err
	}
	return "NOT (" + inner + ")", nil
}

// Not negates a restriction without altering the semantics of the operators
// inside it.
func Not(inner Restriction) Restriction { return &not{inner: inner} }

type junction struct {
	op    string
	parts []Restriction
}

func (r *junction) render(cc *compileContext) (string, error) {
	if len(r.parts) == 0 {
		return "", fmt.Errorf("empty %s restriction", strings.TrimSpace(r.op))
	}
	if len(r.parts) == 1 {
		return r.parts[0].render(cc)
	}
	rendered := make([]string, len(r.parts))
	for i, part := range r.parts {
		s, err := part.render(cc)
		if err != nil {
			return "", err
		}
		rendered[i] = "(" + s + ")"
	}
	return strings.Join(rendered, " "+r.op+" "), nil
}

// And combines restrictions conjunctively.
func And(parts ...Restriction) Restriction { return &junction{op: "AND", parts: parts} }

// Or combines restrictions disjunctively.
func Or(parts ...Restriction) Restriction { return &junction{op: "OR", parts: parts} }

// idInSubquery restricts a path to ids produced by a trusted SQL subquery.
// The subquery text is engine-built (sharing lookups), never user input.
type idInSubquery struct {
	path     string
	subquery string
}

func (r *idInSubquery) render(cc *compileContext) (string, error) {
	column, err := cc.columnFor(r.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s IN (%s)", column, r.subquery), nil
}

// IDInSubquery builds a restriction matching the path against an engine-built
// subquery. Used by the access control layer to inject sharing restrictions.
func IDInSubquery(path, subquery string) Restriction {
	return &idInSubquery{path: path, subquery: subquery}
}

// renderLiteral renders a value as a SQL literal. String content is escaped
// by doubling single quotes so a value can never alter the predicate shape.
func renderLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case types.KID:
		return "'" + strings.ReplaceAll(val.String(), "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return fmt.Sprintf("%d", val)
	case int32:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float32:
		return decimal.NewFromFloat32(val).String()
	case float64:
		return decimal.NewFromFloat(val).String()
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return "'" + val.UTC().Format("2006-01-02 15:04:05") + "'"
	case *types.Record:
		return renderLiteral(val.ID())
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
