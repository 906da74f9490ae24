// Package validation implements declarative validation rules: boolean
// conditions attached to a type that must hold for every saved record.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kommetio/kommet-core/internal/dal"
	"github.com/kommetio/kommet-core/internal/types"
)

var (
	// ErrInvalidFields is returned when a rule condition references no
	// fields, or fields that do not exist on the rule's type.
	ErrInvalidFields = errors.New("validation rule references invalid fields")
)

// Rule is a validation rule definition. Code holds the boolean condition
// in DAL expression syntax; a record passes when the condition is true.
type Rule struct {
	ID     types.KID
	TypeID types.KID
	Name   string
	Code   string

	// ErrorMessage is the literal message shown on violation. When empty,
	// ErrorMessageLabel is resolved through the text-label store instead.
	ErrorMessage      string
	ErrorMessageLabel string

	Active bool
}

// compiledRule pairs a rule with its parsed condition.
type compiledRule struct {
	rule *Rule
	expr *dal.Expression
}

// Compile parses the rule's condition and verifies every referenced field
// against the type. Rules referencing no fields, or unknown fields, are
// rejected before they can be stored.
func Compile(r *Rule, typ *types.Type, resolver types.TypeResolver) (*compiledRule, error) {
	expr, err := dal.ParseExpression(r.Code)
	if err != nil {
		return nil, err
	}
	fields := expr.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: rule %s on type %s references no fields", ErrInvalidFields, r.Name, typ.QualifiedName())
	}
	var missing []string
	for _, path := range fields {
		if _, err := typ.GetField(path, resolver); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: rule %s on type %s references %s", ErrInvalidFields, r.Name, typ.QualifiedName(), strings.Join(missing, ", "))
	}
	return &compiledRule{rule: r, expr: expr}, nil
}
